package middleware

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/yshindo/publog/pkg"
)

func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqIp, _ := pkg.ReadUserIP(r)
			log.Tracef(" ====> request [%s] path: [%s] [ip: %s]", r.Method, r.URL.Path, reqIp)
			next.ServeHTTP(w, r)
		})
	}
}
