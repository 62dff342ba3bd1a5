package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/voicegrid/internal/application/constant"
	"github.com/qrave1/voicegrid/internal/domain/errs"
)

var statusByCode = map[string]int{
	errs.CodeConnectionNotFound: http.StatusNotFound,
	errs.CodeChannelNotFound:    http.StatusNotFound,
	errs.CodeInviteNotFound:     http.StatusNotFound,
	errs.CodeChannelNotSelected: http.StatusConflict,
	errs.CodeUserNotConnected:   http.StatusConflict,
	errs.CodeNotChannelMember:   http.StatusForbidden,
	errs.CodeNotWorkspaceMember: http.StatusForbidden,
	errs.CodeForbidden:          http.StatusForbidden,
	errs.CodeInvalidRequest:     http.StatusBadRequest,
}

// respondError отдает клиенту код ошибки, внутренние ошибки только логируются.
func respondError(c echo.Context, msg string, err error) error {
	public := errs.Public(err)

	status, ok := statusByCode[public.Code]
	if !ok {
		status = http.StatusInternalServerError
		slog.Error(msg, slog.Any(constant.Error, err))
	}

	return c.JSON(status, map[string]string{"error": public.Message, "code": public.Code})
}
