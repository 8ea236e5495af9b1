package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) apiEnvelope {
	t.Helper()
	defer resp.Body.Close()

	var envelope apiEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	}
	return req
}

// validationError produces a real validator.ValidationErrors value so stubs
// can exercise the handlers' 400 branch.
func validationError(t *testing.T) error {
	t.Helper()

	err := validator.New(validator.WithRequiredStructEnabled()).Struct(struct {
		Name string `validate:"required"`
	}{})
	require.Error(t, err)
	return err
}

func asStaff(c *fiber.Ctx) error {
	c.Locals("user_id", "teacher-7")
	c.Locals("user_role", "teacher")
	return c.Next()
}
