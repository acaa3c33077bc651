package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/cueapp/cue/internal/profile"
	"github.com/cueapp/cue/plugin/ai"
	cuemw "github.com/cueapp/cue/server/middleware"
	"github.com/cueapp/cue/server/service/assistant"
	"github.com/cueapp/cue/server/service/preference"
	"github.com/cueapp/cue/server/stats"
	"github.com/cueapp/cue/store"
)

// defaultUserID serves single-user deployments that send no identity header.
const defaultUserID = 1

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store

	Language    ai.LanguageService
	Preferences *preference.Service
	Assistant   *assistant.Service
	Collector   *stats.Collector

	turnLimiter *cuemw.TurnLimiter
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, collector *stats.Collector) *APIV1Service {
	aiConfig := ai.NewConfigFromProfile(profile)
	language := ai.NewLanguageService(aiConfig)
	preferences := preference.NewService(store)

	return &APIV1Service{
		Profile:     profile,
		Store:       store,
		Language:    language,
		Preferences: preferences,
		Assistant:   assistant.NewService(store, preferences, language, profile.DefaultTimezone),
		Collector:   collector,
		// One turn per 2s sustained, burst of 5, per user.
		turnLimiter: cuemw.NewTurnLimiter(2*time.Second, 5),
	}
}

// Register mounts all JSON endpoints on the given Echo instance.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	group := echoServer.Group("/api/v1")
	group.Use(echomw.CORS())

	turns := group.Group("", s.turnLimiter.Middleware(func(c echo.Context) string {
		return strconv.Itoa(int(requestUserID(c)))
	}))
	turns.POST("/assistant/messages", s.PostAssistantMessage)
	turns.POST("/assistant/voice", s.PostAssistantVoice)
	turns.POST("/tasks/:id/refine-artifact", s.PostRefineTaskArtifact)

	group.GET("/assistant/sessions/:uid/messages", s.ListSessionMessages)
	group.GET("/tasks", s.ListTasks)
	group.POST("/tasks", s.CreateTask)
	group.PATCH("/tasks/:id", s.UpdateTask)
	group.GET("/nudges", s.ListNudges)
	group.GET("/stats", s.GetStats)
}

// GetStats returns the deployment's usage snapshot.
//
// GET /api/v1/stats
func (s *APIV1Service) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Collector.Snapshot())
}

// requestUserID resolves the caller from the X-User-ID header, falling back
// to the single-user default.
func requestUserID(c echo.Context) int32 {
	raw := c.Request().Header.Get("X-User-ID")
	if raw == "" {
		return defaultUserID
	}
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return defaultUserID
	}
	return int32(id)
}
