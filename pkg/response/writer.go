package response

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/qgpt/pkg/errors"
	"github.com/kart-io/qgpt/pkg/validator"
)

// HeaderXRequestID carries the request ID in both directions.
const HeaderXRequestID = "X-Request-ID"

// Writer writes envelopes to a gin context.
type Writer struct {
	ctx  *gin.Context
	lang string
}

// NewWriter creates a writer whose language follows the Accept-Language header.
func NewWriter(c *gin.Context) *Writer {
	return &Writer{ctx: c, lang: Lang(c)}
}

// Lang returns "zh" when the client prefers Chinese, otherwise "en".
func Lang(c *gin.Context) string {
	if strings.HasPrefix(strings.ToLower(c.GetHeader("Accept-Language")), "zh") {
		return "zh"
	}
	return "en"
}

func (w *Writer) send(r *Response) {
	r.Timestamp = time.Now().UnixMilli()
	r.RequestID = w.ctx.Writer.Header().Get(HeaderXRequestID)
	w.ctx.JSON(r.HTTPStatus(), r)
}

// OK sends a successful response with data.
func (w *Writer) OK(data interface{}) {
	w.send(Success(data))
}

// Fail sends an error response using Errno.
func (w *Writer) Fail(e *errors.Errno) {
	w.send(Err(e, w.lang))
}

// FailWithError converts a standard error and sends it.
// If the chain holds an Errno it is used directly, otherwise ErrInternal.
func (w *Writer) FailWithError(err error) {
	w.Fail(errors.FromError(err))
}

// FailWithBindOrValidation answers 400 for malformed bodies and rejected fields.
func (w *Writer) FailWithBindOrValidation(err error) {
	var verr *validator.ValidationErrors
	if stderrors.As(err, &verr) {
		resp := Err(errors.ErrInvalidParam, w.lang).WithData(verr.Errors)
		if msgs := verr.Messages(); len(msgs) > 0 {
			resp.Message = msgs[0]
		}
		w.send(resp)
		return
	}
	resp := Err(errors.ErrBadRequest, w.lang)
	resp.status = http.StatusBadRequest
	resp.Message = "invalid request body: " + err.Error()
	w.send(resp)
}

// OK sends a successful response.
func OK(c *gin.Context, data interface{}) {
	NewWriter(c).OK(data)
}

// Fail sends an error response using Errno.
func Fail(c *gin.Context, e *errors.Errno) {
	NewWriter(c).Fail(e)
}

// FailWithError sends an error response from a standard error.
func FailWithError(c *gin.Context, err error) {
	NewWriter(c).FailWithError(err)
}

// FailWithBindOrValidation handles binding or validation errors.
func FailWithBindOrValidation(c *gin.Context, err error) {
	NewWriter(c).FailWithBindOrValidation(err)
}
