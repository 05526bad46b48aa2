package handlers

import (
	"errors"
	"log/slog"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	config "github.com/powerca/backoffice/configs"
	"github.com/powerca/backoffice/crm"
	"github.com/powerca/backoffice/database"
	"github.com/powerca/backoffice/notifications"
	"github.com/powerca/backoffice/payments"
	"github.com/powerca/backoffice/services"
	"github.com/powerca/backoffice/utils"
	"github.com/powerca/backoffice/websocket"
)

var validate = validator.New()

// Handler holds the collaborators shared by every HTTP handler.
type Handler struct {
	Settings     *config.Settings
	Store        *database.Store
	Verification *services.VerificationService
	Razorpay     *payments.RazorpayClient
	Mailer       notifications.Mailer
	CRM          *crm.Sync
	Hub          *websocket.Hub
	Logger       *slog.Logger
}

func New(h Handler) *Handler {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	return &h
}

var statusByKind = map[utils.ErrorKind]int{
	utils.KindValidation:     fiber.StatusBadRequest,
	utils.KindPayment:        fiber.StatusBadRequest,
	utils.KindConfiguration:  fiber.StatusInternalServerError,
	utils.KindAuthentication: fiber.StatusUnauthorized,
	utils.KindAuthorization:  fiber.StatusForbidden,
	utils.KindNotFound:       fiber.StatusNotFound,
	utils.KindConflict:       fiber.StatusConflict,
	utils.KindInternal:       fiber.StatusInternalServerError,
}

func StatusFor(kind utils.ErrorKind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// RespondError writes the shared error envelope. Internal errors never leak their cause.
func RespondError(c *fiber.Ctx, err error) error {
	kind := utils.KindOf(err)
	message := "Internal server error"

	var appErr *utils.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		message = appErr.Message
	}
	if kind == utils.KindInternal || kind == utils.KindConfiguration {
		slog.Error("request failed", "path", c.Path(), "method", c.Method(), "kind", string(kind), "error", err)
	}

	return c.Status(StatusFor(kind)).JSON(fiber.Map{
		"success": false,
		"error":   fiber.Map{"kind": kind, "message": message},
	})
}

// ErrorHandler is the Fiber-level fallback using the same envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		kind := utils.KindInternal
		switch fe.Code {
		case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUnprocessableEntity:
			kind = utils.KindValidation
		case fiber.StatusUnauthorized:
			kind = utils.KindAuthentication
		case fiber.StatusForbidden:
			kind = utils.KindAuthorization
		case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
			kind = utils.KindNotFound
		case fiber.StatusConflict:
			kind = utils.KindConflict
		}
		return c.Status(fe.Code).JSON(fiber.Map{
			"success": false,
			"error":   fiber.Map{"kind": kind, "message": fe.Message},
		})
	}
	return RespondError(c, err)
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return utils.WrapError(utils.KindValidation, "Cannot parse JSON", err)
	}
	if err := validate.Struct(out); err != nil {
		return utils.WrapError(utils.KindValidation, err.Error(), err)
	}
	return nil
}

type pagination struct {
	Page   int
	Limit  int
	Offset int
}

func paginate(c *fiber.Ctx) pagination {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}
	return pagination{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

func (p pagination) meta(total int64) fiber.Map {
	return fiber.Map{
		"total":     total,
		"page":      p.Page,
		"last_page": int(math.Ceil(float64(total) / float64(p.Limit))),
	}
}
