package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsafe/backend/internal/infrastructure/storage"
	"github.com/tsafe/backend/internal/interfaces/http/dto"
)

const sampleWallet = "0x52908400098527886E0F7030069857D2E4169EE7"

type registrationInput struct {
	Name     string   `json:"name" binding:"required,max=10"`
	Phone    string   `json:"phone" binding:"required,numeric"`
	Days     int      `json:"days" binding:"gte=1,lte=30"`
	Wallet   string   `json:"wallet" binding:"omitempty,eth_addr"`
	Evidence []string `json:"evidence" binding:"dive,cid"`
}

// bindRouter binds registrationInput and reports failures through
// HandleValidationError.
func bindRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/bind", func(c *gin.Context) {
		var in registrationInput
		if err := c.ShouldBindJSON(&in); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func TestHandleValidationError(t *testing.T) {
	router := bindRouter()
	validCID := storage.ContentID([]byte("evidence"))

	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"valid", `{"name":"Asha","phone":"919800000000","days":3,"wallet":"` + sampleWallet + `","evidence":["` + validCID + `"]}`, nil},
		{"missing required", `{"days":3}`, []string{"name", "phone"}},
		{"range and format", `{"name":"Asha","phone":"+91-98","days":45}`, []string{"phone", "days"}},
		{"short wallet", `{"name":"Asha","phone":"1","days":1,"wallet":"0x1234"}`, []string{"wallet"}},
		{"bad evidence ref", `{"name":"Asha","phone":"1","days":1,"evidence":["not-a-cid"]}`, []string{"evidence[0]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if tt.fields == nil {
				assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
				return
			}
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
			assert.Equal(t, w.Header().Get(RequestIDHeader), resp.Error.RequestID)

			var got []string
			for _, d := range resp.Error.Details {
				got = append(got, d.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestFormatValidationErrors_NonValidatorError(t *testing.T) {
	resp := FormatValidationErrors(errors.New("unexpected EOF"), "req-1")

	assert.False(t, resp.Success)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	assert.Empty(t, resp.Error.Details)
}

func TestValidationMessage(t *testing.T) {
	v := validator.New()
	tests := []struct {
		tag   string
		value any
		want  string
	}{
		{"required", "", "This field is required"},
		{"email", "nope", "Invalid email format"},
		{"min=5", "ab", "Must be at least 5 characters"},
		{"max=3", "abcdef", "Must be at most 3 characters"},
		{"min=18", 10, "Must be at least 18"},
		{"len=6", "123", "Must be exactly 6 characters"},
		{"oneof=low medium high", "severe", "Must be one of: low medium high"},
		{"gte=1", 0, "Must be greater than or equal to 1"},
		{"lt=10", 11, "Must be less than 10"},
		{"numeric", "12a", "Must be numeric"},
		{"hexadecimal", "zz", "Invalid value"},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			err := v.Var(tt.value, tt.tag)
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.want, validationMessage(verrs[0]))
		})
	}
}
