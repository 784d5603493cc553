package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"

	"github.com/KazeTachinuu/copy-paste/cfg"
	"github.com/KazeTachinuu/copy-paste/pkg/domain"
	"github.com/KazeTachinuu/copy-paste/svc/svc"
	"github.com/KazeTachinuu/copy-paste/svc/util"
)

type Hdl struct {
	store *svc.Store
	cfg   *cfg.Cfg
}

type CreateReq struct {
	Text        string `json:"text,omitempty"`
	Image       string `json:"image,omitempty"`
	SessionCode string `json:"session_code,omitempty"`
}

type CreateResp struct {
	Code      string      `json:"code"`
	Kind      domain.Kind `json:"kind"`
	ExpiresAt int64       `json:"expires_at"`
}

type ReadResp struct {
	Text      string      `json:"text,omitempty"`
	Image     string      `json:"image,omitempty"`
	Kind      domain.Kind `json:"kind"`
	ExpiresAt int64       `json:"expires_at"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())

	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().
			Str("content_type", contentType).
			Str("request_id", requestID).
			Msg("invalid Content-Type header")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(map[string]string{
			"error":      "expected Content-Type: application/json",
			"request_id": requestID,
		})
		return
	}

	// Budget for the encoded image plus text plus JSON framing.
	limit := (h.cfg.MaxImageBytes*4)/3 + int64(h.cfg.MaxTextLength)*4 + 4096
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	var req CreateReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request body")
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}

	params := domain.CreateParams{
		Text:        sanitizeText(req.Text),
		SessionCode: req.SessionCode,
	}
	if req.Image != "" {
		data, mimeType, err := domain.ParseImageDataURL(req.Image, h.cfg.MaxImageBytes)
		if err != nil {
			log.Warn().Err(err).Msg("rejected image payload")
			writeErr(w, err, requestID)
			return
		}
		params.Image = data
		params.ImageMIME = mimeType
	}

	paste, err := h.store.Create(r.Context(), params)
	if err != nil {
		if domain.Status(err) < http.StatusInternalServerError {
			log.Warn().Err(err).Msg("create rejected")
		} else {
			log.Error().Err(err).Msg("create failed")
		}
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("code", paste.Code).
		Str("kind", string(paste.Kind)).
		Bool("has_image", len(paste.Image) > 0).
		Msg("paste created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResp{
		Code:      paste.Code,
		Kind:      paste.Kind,
		ExpiresAt: paste.ExpiresAt.UnixMilli(),
	})
}

func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	code := chi.URLParam(r, "code")

	paste, err := h.store.Get(r.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) || errors.Is(err, domain.ErrInvalidCode) {
			writeErr(w, err, requestID)
			return
		}
		log.Error().Err(err).Str("code", code).Msg("get failed")
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("code", paste.Code).
		Str("client_ip", util.RedactIP(r.RemoteAddr)).
		Msg("paste retrieved")
	resp := ReadResp{
		Text:      paste.Text,
		Kind:      paste.Kind,
		ExpiresAt: paste.ExpiresAt.UnixMilli(),
	}
	if len(paste.Image) > 0 {
		resp.Image = domain.ImageDataURL(paste.ImageMIME, paste.Image)
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *Hdl) ListPastes(w http.ResponseWriter, r *http.Request) {
	infos := h.store.List(r.Context())
	json.NewEncoder(w).Encode(infos)
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	w.WriteHeader(statusCode)
	errorMsg := domain.ToResp(err).Error.Msg
	if statusCode >= http.StatusInternalServerError && !errors.Is(err, domain.ErrStoreUnavailable) {
		errorMsg = "internal server error"
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	json.NewEncoder(w).Encode(map[string]string{
		"error":      errorMsg,
		"request_id": requestID,
	})
}

// sanitizeText NFC-normalizes and strips control characters other than
// newline, carriage return, and tab.
func sanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = norm.NFC.String(s)
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
