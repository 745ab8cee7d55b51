package admin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"

	"github.com/maxpert/topology/coordinator"
	"github.com/maxpert/topology/dbconfig"
	"github.com/maxpert/topology/systemkeys"
	"github.com/rs/zerolog/log"
)

// maxValueBytes bounds PUT bodies
const maxValueBytes = 1 << 20

// ConfigService is the configuration owner the admin API drives
type ConfigService interface {
	Canonical() map[string]string
	Describe() string
	IsValid() bool
	Version() uint64
	Get(suffix string) ([]byte, bool)
	Set(ctx context.Context, suffix string, value []byte) (coordinator.Result, error)
	Clear(ctx context.Context, begin, end string) (coordinator.Result, error)
	ExcludedServers() []systemkeys.AddressExclusion
	IsExcludedServer(addr netip.AddrPort) bool
	Exclude(ctx context.Context, a systemkeys.AddressExclusion) (coordinator.Result, error)
	Include(ctx context.Context, a systemkeys.AddressExclusion) (coordinator.Result, error)
}

// AdminHandlers handles admin API endpoints for the cluster configuration
type AdminHandlers struct {
	service ConfigService
	secret  string
}

// NewAdminHandlers creates a new AdminHandlers instance. An empty secret disables auth.
func NewAdminHandlers(service ConfigService, secret string) *AdminHandlers {
	return &AdminHandlers{
		service: service,
		secret:  secret,
	}
}

type configResponse struct {
	Version   uint64            `json:"version"`
	Valid     bool              `json:"valid"`
	Canonical map[string]string `json:"canonical"`
}

type keyResponse struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Base64 string `json:"base64"`
}

type resultResponse struct {
	Version     uint64 `json:"version"`
	Valid       bool   `json:"valid"`
	Invalidated bool   `json:"invalidated"`
}

type exclusionResponse struct {
	Address      string `json:"address"`
	WholeMachine bool   `json:"whole_machine"`
}

func (h *AdminHandlers) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, configResponse{
		Version:   h.service.Version(),
		Valid:     h.service.IsValid(),
		Canonical: h.service.Canonical(),
	})
}

func (h *AdminHandlers) handleConfigString(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, h.service.Describe())
}

func (h *AdminHandlers) handleConfigValid(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]bool{"valid": h.service.IsValid()})
}

func (h *AdminHandlers) handleGetKey(w http.ResponseWriter, r *http.Request, suffix string) {
	value, ok := h.service.Get(suffix)
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "key not found")
		return
	}
	writeJSONResponse(w, keyResponse{
		Key:    suffix,
		Value:  string(value),
		Base64: encodeBase64(value),
	})
}

func (h *AdminHandlers) handleSetKey(w http.ResponseWriter, r *http.Request, suffix string) {
	value, err := io.ReadAll(io.LimitReader(r.Body, maxValueBytes+1))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(value) > maxValueBytes {
		writeErrorResponse(w, http.StatusRequestEntityTooLarge, "value too large")
		return
	}
	if r.URL.Query().Get("encoding") == "base64" {
		if value, err = base64.StdEncoding.DecodeString(string(value)); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "invalid base64 value")
			return
		}
	}

	res, err := h.service.Set(r.Context(), suffix, value)
	if err != nil {
		writeApplyError(w, err)
		return
	}
	log.Info().Str("key", suffix).Uint64("version", res.Version).Msg("Configuration key set via admin")
	writeJSONResponse(w, toResultResponse(res))
}

func (h *AdminHandlers) handleClearKeys(w http.ResponseWriter, r *http.Request) {
	begin := r.URL.Query().Get("begin")
	end := r.URL.Query().Get("end")
	if begin == "" && end == "" && r.URL.Query().Get("all") != "true" {
		writeErrorResponse(w, http.StatusBadRequest, "begin or end is required (or all=true)")
		return
	}

	res, err := h.service.Clear(r.Context(), begin, end)
	if err != nil {
		writeApplyError(w, err)
		return
	}
	log.Info().Str("begin", begin).Str("end", end).Uint64("version", res.Version).Msg("Configuration range cleared via admin")
	writeJSONResponse(w, toResultResponse(res))
}

func (h *AdminHandlers) handleListExcluded(w http.ResponseWriter, r *http.Request) {
	excluded := h.service.ExcludedServers()
	out := make([]exclusionResponse, 0, len(excluded))
	for _, a := range excluded {
		out = append(out, exclusionResponse{Address: a.String(), WholeMachine: a.IsWholeMachine()})
	}
	writeJSONResponse(w, out)
}

func (h *AdminHandlers) handleCheckExcluded(w http.ResponseWriter, r *http.Request, addr string) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "address must be ip:port")
		return
	}
	writeJSONResponse(w, map[string]bool{"excluded": h.service.IsExcludedServer(ap)})
}

func (h *AdminHandlers) handleExclude(w http.ResponseWriter, r *http.Request, addr string) {
	a, err := systemkeys.ParseAddressExclusion(addr)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.service.Exclude(r.Context(), a)
	if err != nil {
		writeApplyError(w, err)
		return
	}
	log.Info().Stringer("address", a).Msg("Server excluded via admin")
	writeJSONResponse(w, toResultResponse(res))
}

func (h *AdminHandlers) handleInclude(w http.ResponseWriter, r *http.Request, addr string) {
	a, err := systemkeys.ParseAddressExclusion(addr)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.service.Include(r.Context(), a)
	if err != nil {
		writeApplyError(w, err)
		return
	}
	log.Info().Stringer("address", a).Msg("Server included via admin")
	writeJSONResponse(w, toResultResponse(res))
}

func toResultResponse(res coordinator.Result) resultResponse {
	return resultResponse{Version: res.Version, Valid: res.Valid, Invalidated: res.Invalidated}
}

// writeApplyError maps coordinator errors to status codes
func writeApplyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dbconfig.ErrPolicyDecode), errors.Is(err, coordinator.ErrOutsideNamespace):
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coordinator.ErrNotRecovered):
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("Admin configuration change failed")
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// encodeBase64 encodes byte slices as base64 strings
func encodeBase64(data []byte) string {
	if data == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}
