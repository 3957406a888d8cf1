package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mirror-persona/backend/internal/analysis/attribute"
	"github.com/zhouzirui/mirror-persona/backend/internal/handler/httperror"
	"github.com/zhouzirui/mirror-persona/backend/internal/model/persona"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/session"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/vision"
	"github.com/zhouzirui/mirror-persona/backend/pkg/utils"
)

const (
	// PrivacyNote 在用户上传照片前展示。
	PrivacyNote = "Your photo and chat messages are sent to the configured model provider. Your API key and data are not saved by this application after the session ends."
	// CreatedMessage 角色创建成功的提示。
	CreatedMessage = "Character created. Start chatting below!"

	// multipart 包装的额外开销。
	multipartOverhead = 1 << 20
)

// Handler 角色创建流程的HTTP处理器
type Handler struct {
	sessions      *session.Manager
	defaultName   string
	maxImageBytes int64
}

// New 创建persona处理器
func New(sessions *session.Manager, defaultName string, maxImageBytes int64) *Handler {
	return &Handler{
		sessions:      sessions,
		defaultName:   defaultName,
		maxImageBytes: maxImageBytes,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/options", h.handleOptions)
	r.Post("/sessions/{sessionID}/image", h.handleAnalyzeImage)
	r.Post("/sessions/{sessionID}/character/preview", h.handlePreview)
	r.Post("/sessions/{sessionID}/character", h.handleCreateCharacter)
}

type optionsResponse struct {
	Emotions         []string          `json:"emotions"`
	Genders          []string          `json:"genders"`
	OppositeEmotions map[string]string `json:"oppositeEmotions"`
	OppositeGenders  map[string]string `json:"oppositeGenders"`
	DefaultName      string            `json:"defaultName"`
	PrivacyNote      string            `json:"privacyNote"`
}

// handleOptions 返回可选的情绪、性别以及对照表
func (h *Handler) handleOptions(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, optionsResponse{
		Emotions:         attribute.Emotions(),
		Genders:          attribute.Genders(),
		OppositeEmotions: attribute.EmotionTable(),
		OppositeGenders:  attribute.GenderTable(),
		DefaultName:      h.defaultName,
		PrivacyNote:      PrivacyNote,
	})
}

type analysisResponse struct {
	Analysis     persona.Analysis `json:"analysis"`
	Warning      string           `json:"warning,omitempty"`
	NeedsEmotion bool             `json:"needsEmotion"`
	NeedsGender  bool             `json:"needsGender"`
}

// handleAnalyzeImage 接收照片（multipart 字段 image 或原始 image/* 请求体）
func (h *Handler) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		httperror.Respond(w, err)
		return
	}

	data, err := h.readImage(w, r)
	if err != nil {
		httperror.Respond(w, err)
		return
	}

	outcome, err := s.AnalyzeImage(r.Context(), data)
	if err != nil {
		httperror.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, analysisResponse{
		Analysis:     outcome.Analysis,
		Warning:      outcome.Warning,
		NeedsEmotion: !outcome.Analysis.EmotionKnown(),
		NeedsGender:  !outcome.Analysis.GenderKnown(),
	})
}

func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := h.maxImageBytes
	var src io.Reader

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		file, _, err := r.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, vision.ErrImageTooLarge
			}
			return nil, fmt.Errorf("%w: %v", vision.ErrEmptyImage, err)
		}
		defer file.Close()
		src = file
	} else {
		src = r.Body
	}

	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, vision.ErrImageTooLarge
	}
	if len(data) == 0 {
		return nil, vision.ErrEmptyImage
	}
	return data, nil
}

func decodeSelection(r *http.Request) (session.Selection, error) {
	var sel session.Selection
	if r.ContentLength == 0 {
		return sel, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil && !errors.Is(err, io.EOF) {
		return sel, err
	}
	return sel, nil
}

type previewResponse struct {
	Spec    persona.Spec `json:"spec"`
	Summary string       `json:"summary"`
}

// handlePreview 展示将要生成的角色（性别与情绪取反）
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	sel, err := decodeSelection(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		httperror.Respond(w, err)
		return
	}

	spec, err := s.Preview(sel)
	if err != nil {
		httperror.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, previewResponse{Spec: spec, Summary: spec.Summary()})
}

type createResponse struct {
	Profile persona.Profile `json:"profile"`
	Brief   string          `json:"brief"`
	Message string          `json:"message"`
}

// handleCreateCharacter 生成角色并重置对话
func (h *Handler) handleCreateCharacter(w http.ResponseWriter, r *http.Request) {
	sel, err := decodeSelection(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		httperror.Respond(w, err)
		return
	}

	profile, err := s.CreateCharacter(r.Context(), sel)
	if err != nil {
		httperror.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, createResponse{
		Profile: profile,
		Brief:   persona.Brief(profile.ProfileText, persona.BriefMaxLen),
		Message: CreatedMessage,
	})
}
