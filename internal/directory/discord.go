package directory

import (
	"context"
	"errors"
	"net/http"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/bwmarrin/discordgo"
)

// userFetcher часть discordgo.Session, которой пользуется каталог
type userFetcher interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

// DiscordDirectory ищет пользователей через Discord Bot API
type DiscordDirectory struct {
	session userFetcher
	log     *logger.Logger
}

// NewDiscordDirectory создает каталог с токеном бота
func NewDiscordDirectory(botToken string, log *logger.Logger) (*DiscordDirectory, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, domain.NewExternalServiceError("discord", "failed to create session", err)
	}
	return &DiscordDirectory{session: session, log: log}, nil
}

// LookupByExternalID запрашивает пользователя Discord по snowflake ID
func (d *DiscordDirectory) LookupByExternalID(ctx context.Context, id string) (domain.Profile, error) {
	user, err := d.session.User(id, discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusNotFound, http.StatusBadRequest:
				// 400 Discord возвращает для строк, не являющихся snowflake
				return domain.Profile{}, domain.NewNotFoundError("discord user", id)
			}
		}
		d.log.Errorw("Discord user lookup failed", "error", err, "externalID", id)
		return domain.Profile{}, domain.NewExternalServiceError("discord", "user lookup failed", err)
	}

	return domain.Profile{
		ExternalID: user.ID,
		Username:   user.Username,
		Bot:        user.Bot,
	}, nil
}
