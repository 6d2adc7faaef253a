// Package models contains the GORM persistence models for purchase orders,
// the receipt log and the event outbox. Domain types carry no ORM tags; each
// model converts with ToDomain and FromDomain.
//
//   - base.go: shared ID, timestamp and version columns
//   - procurement.go: orders, order lines, receipts, receipt lines
//   - outbox.go: transactional outbox rows
package models
