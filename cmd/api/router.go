package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	accountDelivery "github.com/usemox/mox/internal/account/delivery"
	actionDelivery "github.com/usemox/mox/internal/actionitem/delivery"
	"github.com/usemox/mox/internal/app"
	emailDelivery "github.com/usemox/mox/internal/email/delivery"
	syncDelivery "github.com/usemox/mox/internal/mailsync/delivery"
	pushDelivery "github.com/usemox/mox/internal/notification/delivery"
	peopleDelivery "github.com/usemox/mox/internal/people/delivery"
	searchDelivery "github.com/usemox/mox/internal/search/delivery"
)

func SetupRoutes(r *gin.Engine, c *app.Container) {
	accountHandler := accountDelivery.NewAccountHandler(c.Accounts)

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		// Public
		accountHandler.RegisterPublic(api)
		pushDelivery.NewPushHandler(c.Listener, c.Config.PushToken, c.Logger).Register(api)

		// Authenticated
		authed := api.Group("")
		authed.Use(accountDelivery.AuthMiddleware(c.Accounts))
		{
			accountHandler.Register(authed)
			syncDelivery.NewSyncHandler(c.Sync).Register(authed)
			emailDelivery.NewEmailHandler(c.Mailbox).Register(authed)
			emailDelivery.NewSummaryHandler(c.Summaries).Register(authed)
			searchDelivery.NewSearchHandler(c.Search).Register(authed)
			peopleDelivery.NewPeopleHandler(c.People).Register(authed)
			actionDelivery.NewActionItemHandler(c.ActionItems).Register(authed)
			NewSettingsHandler(c.AISettings, c.Ollama).Register(authed)
			authed.GET("/events", NewEventsHandler(c.Bus).Stream)
		}
	}
}
