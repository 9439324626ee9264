package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const checkoutBody = `{"payment_method":"card","shipping_address":"1 Main St"}`

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(nil).SetupRoutes(router)
	return router
}

func TestCheckout_RejectsMissingUserHeader(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "X-User-ID")
}

func TestCheckout_RejectsInvalidUserHeader(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "not-a-number")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusForResponse(t *testing.T) {
	assert.Equal(t, http.StatusCreated, statusForResponse(&service.CheckoutResponse{Success: true}))
	assert.Equal(t, http.StatusBadRequest, statusForResponse(&service.CheckoutResponse{ErrorKind: service.ErrorKindEmptyCart}))
	assert.Equal(t, http.StatusConflict, statusForResponse(&service.CheckoutResponse{ErrorKind: service.ErrorKindInsufficientStock}))
	assert.Equal(t, http.StatusPaymentRequired, statusForResponse(&service.CheckoutResponse{ErrorKind: service.ErrorKindPaymentDeclined}))
	assert.Equal(t, http.StatusGatewayTimeout, statusForResponse(&service.CheckoutResponse{ErrorKind: service.ErrorKindTimeout}))
	assert.Equal(t, http.StatusInternalServerError, statusForResponse(&service.CheckoutResponse{ErrorKind: service.ErrorKindCommitError}))
}
