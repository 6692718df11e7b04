package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"adtel/internal/apierrors"
	"adtel/internal/clients/telegram"
	"adtel/internal/observability"
	"adtel/internal/store"
)

// Dispatcher consumes parsed bot updates.
type Dispatcher interface {
	HandleUpdate(ctx context.Context, u telegram.Update)
}

// Reporter serves campaign view aggregates.
type Reporter interface {
	GetCampaignByID(ctx context.Context, id uuid.UUID) (store.Campaign, error)
	CampaignViewReport(ctx context.Context, campaignID uuid.UUID) ([]store.ContentViewStat, error)
	ListCampaignContents(ctx context.Context, campaignID uuid.UUID) ([]store.Content, error)
}

// MediaWarmer queues media warm-ups so content files carry cached Telegram
// file ids before real renders.
type MediaWarmer interface {
	WarmContent(ctx context.Context, contentID uuid.UUID) error
}

// TestRenderer posts campaign contents to a preview chat.
type TestRenderer interface {
	RenderPreview(ctx context.Context, campaignID uuid.UUID, chatID int64) error
}

type API struct {
	router        *gin.RouterGroup
	dispatcher    Dispatcher
	reports       Reporter
	renderer      TestRenderer
	warmer        MediaWarmer
	webhookSecret string
	testChatID    int64
	logger        *observability.Logger
}

func New(router *gin.RouterGroup, dispatcher Dispatcher, reports Reporter, renderer TestRenderer, webhookSecret string, testChatID int64, logger *observability.Logger) API {
	return API{
		router:        router,
		dispatcher:    dispatcher,
		reports:       reports,
		renderer:      renderer,
		webhookSecret: webhookSecret,
		testChatID:    testChatID,
		logger:        logger,
	}
}

// SetMediaWarmer makes test renders also queue media warm-ups.
func (a *API) SetMediaWarmer(w MediaWarmer) {
	a.warmer = w
}

func (a *API) RegisterRoutes() {
	a.Health()
	a.router.POST("/webhook/:secret", a.HandleWebhook)
	a.router.GET("/reports/campaigns/:id/views", a.HandleCampaignViews)
	a.router.POST("/campaigns/:id/test", a.HandleTestRender)
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}

// HandleWebhook receives bot updates from Telegram. The path secret stands in
// for Telegram's lack of webhook authentication.
func (a *API) HandleWebhook(c *gin.Context) {
	if c.Param("secret") != a.webhookSecret {
		apierrors.Unauthorized(c, "Unknown webhook secret")
		return
	}

	var raw tgbotapi.Update
	if err := c.ShouldBindJSON(&raw); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	if u, ok := telegram.ParseUpdate(raw); ok {
		a.dispatcher.HandleUpdate(c.Request.Context(), u)
	}

	// Telegram retries non-200 responses; dispatch errors are logged, not
	// surfaced.
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// CampaignViewsResponse is the per-campaign view report body.
type CampaignViewsResponse struct {
	CampaignID uuid.UUID               `json:"campaign_id"`
	Title      string                  `json:"title"`
	Status     string                  `json:"status"`
	TotalViews int64                   `json:"total_views"`
	Contents   []store.ContentViewStat `json:"contents"`
}

// HandleCampaignViews returns collected views per content of a campaign.
func (a *API) HandleCampaignViews(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.BadRequest(c, apierrors.CodeInvalidInput, "id must be a valid UUID")
		return
	}
	ctx := c.Request.Context()

	campaign, err := a.reports.GetCampaignByID(ctx, id)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}
	stats, err := a.reports.CampaignViewReport(ctx, id)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	resp := CampaignViewsResponse{
		CampaignID: campaign.ID,
		Title:      campaign.Title,
		Status:     campaign.Status,
		Contents:   stats,
	}
	for _, stat := range stats {
		resp.TotalViews += stat.Views
	}
	c.JSON(http.StatusOK, resp)
}

// HandleTestRender posts the campaign's contents to the configured test chat.
func (a *API) HandleTestRender(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.BadRequest(c, apierrors.CodeInvalidInput, "id must be a valid UUID")
		return
	}

	ctx := c.Request.Context()
	if err := a.renderer.RenderPreview(ctx, id, a.testChatID); err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	if a.warmer != nil {
		contents, err := a.reports.ListCampaignContents(ctx, id)
		if err != nil {
			a.logger.Error(ctx, "failed to list contents for media warm-up", err)
		}
		for _, content := range contents {
			if err := a.warmer.WarmContent(ctx, content.ID); err != nil {
				a.logger.Error(ctx, "failed to queue media warm-up", err)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}
