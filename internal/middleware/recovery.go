package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"propscan-api/pkg/apierror"
	"propscan-api/pkg/response"
)

// Recovery is a middleware that recovers from panics.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				Log(r.Context()).Error().
					Str("panic", fmt.Sprint(err)).
					Bytes("stack", debug.Stack()).
					Msg("PANIC")

				response.Error(w, apierror.Unknown("internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
