// Package telegram sends campaign messages through the Telegram Bot API,
// one bot per sender account token.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/unclebandit/outreach-dispatch/internal/model"
	"github.com/unclebandit/outreach-dispatch/internal/transport"
)

// MaxMessageRunes is the Bot API text limit.
const MaxMessageRunes = 4096

const apiErrorPrefix = "telegram: "

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	jsProtocolPattern = regexp.MustCompile(`(?i)javascript:`)
	apiErrorCode      = regexp.MustCompile(` \(\d+\)$`)

	errNoAddress = "contact has no telegram address"
)

type Config struct {
	APIURL     string
	RatePerSec float64
	Timeout    time.Duration
}

type Transport struct {
	cfg    Config
	client *http.Client

	mu       sync.Mutex
	bots     map[string]*tele.Bot
	limiters map[string]*rate.Limiter
}

func New(cfg Config) *Transport {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Transport{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		bots:     map[string]*tele.Bot{},
		limiters: map[string]*rate.Limiter{},
	}
}

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) Send(ctx context.Context, account model.SenderAccount, contact model.Contact, text string) (transport.Result, error) {
	to, ok := recipientFor(contact)
	if !ok {
		return transport.Rejected(errNoAddress), nil
	}

	bot, lim, err := t.botFor(account.APIToken)
	if err != nil {
		return transport.Result{}, err
	}
	if err := lim.Wait(ctx); err != nil {
		return transport.Result{}, err
	}

	// The bot client does not take a context; the http client timeout bounds
	// the call instead.
	_, err = bot.Send(to, Sanitize(text), &tele.SendOptions{ParseMode: tele.ModeHTML})
	if err == nil {
		return transport.Delivered(), nil
	}
	return classify(err)
}

// classify separates answers from the Bot API (rejections) from failures to
// get an answer at all. Flood control is treated as the latter so the
// account cools down. Descriptions telebot has no typed error for arrive as
// plain "telegram: <description> (<code>)" errors.
func classify(err error) (transport.Result, error) {
	var floodVal tele.FloodError
	var floodPtr *tele.FloodError
	if errors.As(err, &floodVal) || errors.As(err, &floodPtr) {
		return transport.Result{}, err
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		reason := apiErr.Description
		if reason == "" {
			reason = apiErr.Error()
		}
		return transport.Rejected(reason), nil
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return transport.Result{}, err
	}
	if msg := err.Error(); strings.HasPrefix(msg, apiErrorPrefix) {
		reason := apiErrorCode.ReplaceAllString(strings.TrimPrefix(msg, apiErrorPrefix), "")
		return transport.Rejected(reason), nil
	}
	return transport.Result{}, err
}

func (t *Transport) botFor(token string) (*tele.Bot, *rate.Limiter, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil, errors.New("telegram account has no api token")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if b, ok := t.bots[token]; ok {
		return b, t.limiters[token], nil
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     t.cfg.APIURL,
		Token:   token,
		Client:  t.client,
		Offline: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create bot: %w", err)
	}
	lim := rate.NewLimiter(rate.Limit(t.cfg.RatePerSec), 1)
	t.bots[token] = b
	t.limiters[token] = lim
	return b, lim, nil
}

// username addresses a chat by its public @handle.
type username string

func (u username) Recipient() string { return string(u) }

func recipientFor(c model.Contact) (tele.Recipient, bool) {
	if id := strings.TrimSpace(c.TelegramID); id != "" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return tele.ChatID(n), true
		}
		return username("@" + strings.TrimPrefix(id, "@")), true
	}
	if u := strings.TrimSpace(c.Username); u != "" {
		return username("@" + strings.TrimPrefix(u, "@")), true
	}
	return nil, false
}

// Sanitize strips markup and script protocols and caps the text length.
func Sanitize(text string) string {
	text = tagPattern.ReplaceAllString(text, "")
	text = jsProtocolPattern.ReplaceAllString(text, "")
	if r := []rune(text); len(r) > MaxMessageRunes {
		text = string(r[:MaxMessageRunes])
	}
	return text
}
