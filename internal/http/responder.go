package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/scheduling-core/internal/application"
	"github.com/example/scheduling-core/internal/scheduler"
)

var (
	errBadRequestBody    = errors.New("無効なリクエスト形式です。")
	errInvalidEventID    = errors.New("無効なイベント ID です。")
	errInvalidResourceID = errors.New("無効なリソース ID です。")
	errInvalidQueryTime  = errors.New("日時は RFC 3339 形式で指定してください。")
	errInvalidSlotSize   = errors.New("スロット幅の形式が不正です。")
	errMissingModuleKey  = errors.New("モジュール名と API キーを指定してください。")
	errInvalidModuleKey  = errors.New("API キーが無効です。")
	errRateLimited       = errors.New("リクエストが多すぎます。しばらくしてから再試行してください。")
)

// Error codes surfaced to API clients alongside 409 responses.
const (
	errorCodeConflict           = "SCHEDULING_CONFLICT"
	errorCodeInvalidTransition  = "INVALID_TRANSITION"
	errorCodeConcurrentModified = "CONCURRENT_MODIFICATION"
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr *application.ValidationError
		cErr *application.ConflictError
		tErr *application.InvalidTransitionError
	)
	switch {
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "指定されたイベントが見つかりません。"})
	case errors.Is(err, application.ErrConcurrency):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: errorCodeConcurrentModified,
			Message:   "イベントが同時に更新されました。最新の内容を取得して再試行してください。",
		})
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Message: "入力内容に誤りがあります。",
			Errors:  localizeValidationErrors(vErr),
		})
	case errors.As(err, &cErr):
		report := toConflictReportDTO(cErr.Report)
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: errorCodeConflict,
			Message:   "既存の予定と競合しています。",
			Conflict:  &report,
		})
	case errors.As(err, &tErr):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: errorCodeInvalidTransition,
			Message:   "このステータス変更は許可されていません。",
			Errors:    map[string]string{"status": string(tErr.From) + " -> " + string(tErr.To)},
		})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "認証が必要です。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	case http.StatusTooManyRequests:
		return "リクエストが多すぎます。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "title is required":
		return "タイトルは必須です。"
	case "start is required":
		return "開始日時は必須です。"
	case "end is required":
		return "終了日時は必須です。"
	case "start must be before end":
		return "終了日時は開始日時より後である必要があります。"
	case "type is required":
		return "種別は必須です。"
	case "unknown event type":
		return "不明なイベント種別です。"
	case "module is required":
		return "モジュールは必須です。"
	case "unknown module":
		return "不明なモジュールです。"
	case "unknown priority":
		return "不明な優先度です。"
	case "unknown status":
		return "不明なステータスです。"
	case "new events must be scheduled or confirmed":
		return "新規イベントのステータスは scheduled または confirmed のみ指定できます。"
	case "reminder must not be negative":
		return "リマインダーは 0 分以上で指定してください。"
	case "an event with this id already exists":
		return "同じ ID のイベントが既に存在します。"
	case "resource is required":
		return "リソース ID は必須です。"
	case "from is required":
		return "集計開始日時は必須です。"
	case "to is required":
		return "集計終了日時は必須です。"
	case "from must be before to":
		return "集計終了日時は集計開始日時より後である必要があります。"
	case "slot size must be positive":
		return "スロット幅は正の値で指定してください。"
	case "must be an RFC 3339 timestamp":
		return "日時は RFC 3339 形式で指定してください。"
	case "must be between 1900 and 2199":
		return "日時は 1900 年から 2199 年の範囲で指定してください。"
	case "event violates storage constraints":
		return "イベントを保存できません。入力内容を確認してください。"
	case application.TooManySlotsMessage:
		return fmt.Sprintf("スロット数が上限 (%d) を超えます。スロット幅を大きくしてください。", scheduler.MaxSlots)
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string             `json:"error_code,omitempty"`
	Message   string             `json:"message"`
	Errors    map[string]string  `json:"errors,omitempty"`
	Conflict  *conflictReportDTO `json:"conflict,omitempty"`
}
