package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(kind common.Kind) int {
	switch kind {
	case common.KindInvalid:
		return http.StatusBadRequest
	case common.KindUnauthorized:
		return http.StatusUnauthorized
	case common.KindForbidden:
		return http.StatusForbidden
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindConflict:
		return http.StatusConflict
	case common.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides collaborator and invariant detail from clients.
func publicMessage(kind common.Kind, err error) string {
	switch kind {
	case common.KindUnavailable:
		return "service temporarily unavailable, retry later"
	case common.KindInconsistency, common.KindInternal:
		return "internal error"
	case common.KindUnauthorized:
		return "unauthorized"
	default:
		return err.Error()
	}
}

// fail records err on the context for the request logger and writes the
// mapped JSON error.
func fail(c *gin.Context, err error) {
	kind := common.KindOf(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(kind), errorResponse{Error: publicMessage(kind, err)})
}

// bindFailed reports a request body that did not decode or validate.
func bindFailed(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+" "+fe.Tag())
		}
		fail(c, common.Invalid(strings.Join(fields, ", ")))
		return
	}
	fail(c, common.Invalid("malformed request body"))
}
