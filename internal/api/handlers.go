package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saadjs/nibbles/internal/auth"
	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/service"
)

// respondError maps service errors onto status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, service.ErrAnalysisFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoBarcodeLookup), errors.Is(err, service.ErrNoAnalyzer):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.Int64("user_id", c.GetInt64(ctxUserID)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func userID(c *gin.Context) int64 { return c.GetInt64(ctxUserID) }

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &service.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return v, nil
}

type telegramLoginReq struct {
	InitData string `json:"init_data"`
}

func (h *Handler) TelegramLogin(c *gin.Context) {
	if h.botToken == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "telegram login is not configured"})
		return
	}
	var req telegramLoginReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.InitData == "" {
		req.InitData = c.GetHeader("X-Telegram-Init-Data")
	}
	tgUser, err := auth.ValidateInitData(req.InitData, h.botToken)
	if err != nil {
		h.log.Warn("init data rejected", zap.String("request_id", c.GetString(ctxRequestID)), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid init data"})
		return
	}
	u, err := h.svc.EnsureUser(c, tgUser.ID, tgUser.Username, tgUser.FirstName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	token, exp, err := h.tokens.Generate(u.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": exp.UTC(), "user": u})
}

func (h *Handler) Me(c *gin.Context) {
	u, err := h.svc.User(c, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": u.ID, "first_name": u.FirstName, "username": u.Username})
}

func (h *Handler) Today(c *gin.Context) {
	view, err := h.svc.TodayView(c, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) Calendar(c *gin.Context) {
	now := h.svc.Now()
	year, err := queryInt(c, "year", now.Year())
	if err != nil {
		h.respondError(c, err)
		return
	}
	month, err := queryInt(c, "month", int(now.Month()))
	if err != nil {
		h.respondError(c, err)
		return
	}
	view, err := h.svc.Calendar(c, userID(c), year, month)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) DayDetail(c *gin.Context) {
	day, err := time.ParseInLocation("2006-01-02", c.Param("day"), h.svc.Location())
	if err != nil {
		h.respondError(c, &service.ValidationError{Field: "day", Reason: "expected YYYY-MM-DD"})
		return
	}
	view, err := h.svc.DayDetail(c, userID(c), day)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) CalorieChart(c *gin.Context) {
	days, err := queryInt(c, "days", service.DefaultChartDays)
	if err != nil {
		h.respondError(c, err)
		return
	}
	chart, err := h.svc.CalorieChart(c, userID(c), days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chart)
}

func (h *Handler) MacroChart(c *gin.Context) {
	days, err := queryInt(c, "days", service.DefaultChartDays)
	if err != nil {
		h.respondError(c, err)
		return
	}
	chart, err := h.svc.MacroChart(c, userID(c), days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chart)
}

func (h *Handler) TrendChart(c *gin.Context) {
	days, err := queryInt(c, "days", service.DefaultTrendDays)
	if err != nil {
		h.respondError(c, err)
		return
	}
	chart, err := h.svc.TrendChart(c, userID(c), days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chart)
}

func (h *Handler) Pet(c *gin.Context) {
	info, err := h.svc.PetInfo(c, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type renamePetReq struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) RenamePet(c *gin.Context) {
	var req renamePetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pet, err := h.svc.RenamePet(c, userID(c), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "name": pet.Name})
}

func (h *Handler) Achievements(c *gin.Context) {
	list, err := h.svc.Achievements(c, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievements": list})
}

// Summary covers the last ?days days ending today, or a ?range phrase.
func (h *Handler) Summary(c *gin.Context) {
	start, end, err := h.rangeFromQuery(c, 7)
	if err != nil {
		h.respondError(c, err)
		return
	}
	sum, err := h.svc.GenerateSummary(c, userID(c), start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) ExportLogs(c *gin.Context) {
	start, end, err := h.rangeFromQuery(c, 30)
	if err != nil {
		h.respondError(c, err)
		return
	}
	data, err := h.svc.ExportLogs(c, userID(c), start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (h *Handler) rangeFromQuery(c *gin.Context, defDays int) (time.Time, time.Time, error) {
	if phrase := strings.TrimSpace(c.Query("range")); phrase != "" {
		return service.ParseDateRange(phrase, h.svc.Now())
	}
	days, err := queryInt(c, "days", defDays)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if days < 1 || days > service.MaxChartDays {
		return time.Time{}, time.Time{}, &service.ValidationError{Field: "days", Reason: "must be between 1 and 90"}
	}
	today := h.svc.Today()
	return today.AddDate(0, 0, -(days - 1)), today, nil
}

func (h *Handler) DeleteLog(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.respondError(c, &service.ValidationError{Field: "id", Reason: "must be an integer"})
		return
	}
	ok, err := h.svc.DeleteLog(c, userID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type barcodeReq struct {
	Barcode  string  `json:"barcode" binding:"required"`
	Servings float64 `json:"servings"`
}

func (h *Handler) LogBarcode(c *gin.Context) {
	var req barcodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, &service.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	res, err := h.svc.LogBarcode(c, userID(c), req.Barcode, req.Servings)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type profileResponse struct {
	*model.User
	CalorieTarget int `json:"effective_calorie_target"`
	ProteinTarget int `json:"effective_protein_target_g"`
	CarbsTarget   int `json:"effective_carbs_target_g"`
	FatTarget     int `json:"effective_fat_target_g"`
}

func (h *Handler) profile(u *model.User) profileResponse {
	macros := h.svc.MacroTargets(*u)
	return profileResponse{
		User:          u,
		CalorieTarget: h.svc.CalorieTarget(*u),
		ProteinTarget: macros.ProteinG,
		CarbsTarget:   macros.CarbsG,
		FatTarget:     macros.FatG,
	}
}

func (h *Handler) Profile(c *gin.Context) {
	u, err := h.svc.User(c, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.profile(u))
}

type updateProfileReq struct {
	FirstName            *string  `json:"first_name"`
	WeightKg             *float64 `json:"weight_kg"`
	HeightCm             *float64 `json:"height_cm"`
	Age                  *int     `json:"age"`
	Sex                  *string  `json:"sex"`
	ActivityLevel        *string  `json:"activity_level"`
	Goal                 *string  `json:"goal"`
	DailyCalorieTarget   *int     `json:"daily_calorie_target"`
	ProteinTargetG       *int     `json:"protein_target_g"`
	CarbsTargetG         *int     `json:"carbs_target_g"`
	FatTargetG           *int     `json:"fat_target_g"`
	NotificationsEnabled *bool    `json:"notifications_enabled"`
	ReminderHour         *int     `json:"reminder_hour"`
	WeeklySummaryEnabled *bool    `json:"weekly_summary_enabled"`
}

func (r updateProfileReq) toUpdate() (model.ProfileUpdate, error) {
	upd := model.ProfileUpdate{
		FirstName:            r.FirstName,
		WeightKg:             r.WeightKg,
		HeightCm:             r.HeightCm,
		Age:                  r.Age,
		DailyCalorieTarget:   r.DailyCalorieTarget,
		ProteinTargetG:       r.ProteinTargetG,
		CarbsTargetG:         r.CarbsTargetG,
		FatTargetG:           r.FatTargetG,
		NotificationsEnabled: r.NotificationsEnabled,
		ReminderHour:         r.ReminderHour,
		WeeklySummaryEnabled: r.WeeklySummaryEnabled,
	}
	if r.Sex != nil {
		v, err := model.ParseSex(*r.Sex)
		if err != nil {
			return upd, &service.ValidationError{Field: "sex", Reason: err.Error()}
		}
		upd.Sex = &v
	}
	if r.ActivityLevel != nil {
		v, err := model.ParseActivityLevel(*r.ActivityLevel)
		if err != nil {
			return upd, &service.ValidationError{Field: "activity_level", Reason: err.Error()}
		}
		upd.ActivityLevel = &v
	}
	if r.Goal != nil {
		v, err := model.ParseGoal(*r.Goal)
		if err != nil {
			return upd, &service.ValidationError{Field: "goal", Reason: err.Error()}
		}
		upd.Goal = &v
	}
	return upd, nil
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req updateProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	upd, err := req.toUpdate()
	if err != nil {
		h.respondError(c, err)
		return
	}
	u, err := h.svc.UpdateProfile(c, userID(c), upd)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.profile(u))
}

func (h *Handler) ResetMacros(c *gin.Context) {
	u, err := h.svc.ResetMacros(c, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.profile(u))
}

func (h *Handler) ResetCalories(c *gin.Context) {
	u, err := h.svc.ResetCalorieTarget(c, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.profile(u))
}
