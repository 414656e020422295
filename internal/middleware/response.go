package middleware

import (
	"net/http"

	"github.com/Jlypx/BetterForward-enhance/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
