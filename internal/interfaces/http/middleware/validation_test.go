package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/procurement/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineInput struct {
	Quantity decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	Price    decimal.Decimal `json:"price" binding:"decimal_gte0"`
}

type orderInput struct {
	Supplier string      `json:"supplier" binding:"required,max=10"`
	Lines    []lineInput `json:"lines" binding:"required,min=1,dive"`
}

func newValidationRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.POST("/test", func(c *gin.Context) {
		var req orderInput
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return router
}

func postJSON(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestValidation_DecimalTags(t *testing.T) {
	router := newValidationRouter()

	t.Run("accepts positive quantity and zero price", func(t *testing.T) {
		w := postJSON(router, `{"supplier":"SUP-1","lines":[{"quantity":"5","price":"0"}]}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects zero quantity and negative price with field paths", func(t *testing.T) {
		w := postJSON(router, `{"supplier":"SUP-1","lines":[{"quantity":"0","price":"-1"}]}`)
		require.Equal(t, http.StatusBadRequest, w.Code)

		errInfo := decodeError(t, w)
		assert.Equal(t, dto.ErrCodeValidation, errInfo.Code)
		require.Len(t, errInfo.Details, 2)
		assert.Equal(t, "lines[0].quantity", errInfo.Details[0].Field)
		assert.Equal(t, "Must be a decimal greater than 0", errInfo.Details[0].Message)
		assert.Equal(t, "lines[0].price", errInfo.Details[1].Field)
	})

	t.Run("reports missing and empty collections", func(t *testing.T) {
		w := postJSON(router, `{"lines":[]}`)
		require.Equal(t, http.StatusBadRequest, w.Code)

		errInfo := decodeError(t, w)
		require.Len(t, errInfo.Details, 2)
		assert.Equal(t, "supplier", errInfo.Details[0].Field)
		assert.Equal(t, "This field is required", errInfo.Details[0].Message)
		assert.Equal(t, "Must have at least 1 items", errInfo.Details[1].Message)
	})
}

func TestHandleValidationError_MalformedJSON(t *testing.T) {
	router := newValidationRouter()

	w := postJSON(router, `{"supplier":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidJSON, decodeError(t, w).Code)
}

func TestHandleValidationError_TooLarge(t *testing.T) {
	SetupValidator()
	router := gin.New()
	router.Use(BodyLimit(16))
	router.POST("/test", func(c *gin.Context) {
		var req orderInput
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	// Unknown length, so the limit trips while decoding
	req := httptest.NewRequest("POST", "/test", strings.NewReader(`{"supplier":"SUP-1","lines":[{"quantity":"5"}]}`))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.ErrCodeRequestTooLarge, decodeError(t, w).Code)
}

func TestGetValidationMessage(t *testing.T) {
	type sample struct {
		Name  string `validate:"min=5"`
		Kind  string `validate:"oneof=a b"`
		Count int    `validate:"gt=0"`
	}

	v := validator.New()
	err := v.Struct(sample{Name: "ab", Kind: "z"})
	require.Error(t, err)

	messages := map[string]string{}
	for _, e := range err.(validator.ValidationErrors) {
		messages[e.Field()] = getValidationMessage(e)
	}
	assert.Equal(t, "Must be at least 5 characters", messages["Name"])
	assert.Equal(t, "Must be one of: a b", messages["Kind"])
	assert.Equal(t, "Must be greater than 0", messages["Count"])
}
