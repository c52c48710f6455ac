package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// roiAuth пропускает только вызовы с общим секретом в заголовке Authorization.
func (h *Handler) roiAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if h.cfg.ROISecret == "" || !ok ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.cfg.ROISecret)) != 1 {
			h.logger.Warn("rejected roi trigger", zap.String("remote", r.RemoteAddr))
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CalculateROI выполняет один пакет начислений и возвращает его итоги.
func (h *Handler) CalculateROI(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.RunROIBatch(r.Context())
	if err != nil {
		h.writeError(w, r, "roi batch error", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
