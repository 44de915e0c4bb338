package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"stock-portfolio-go/internal/config"
	"stock-portfolio-go/internal/stream"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSFeedOpener opens one websocket quote stream per symbol. It implements
// stream.FeedOpener against the provider's streaming endpoint.
type WSFeedOpener struct {
	streamURL string
	apiKey    string
	logger    *zap.Logger
}

// ensure WSFeedOpener implements the stream collaborator interface
var _ stream.FeedOpener = (*WSFeedOpener)(nil)

// NewWSFeedOpener creates an opener that dials the configured stream URL.
func NewWSFeedOpener(cfg *config.MarketData, logger *zap.Logger) *WSFeedOpener {
	return &WSFeedOpener{
		streamURL: cfg.StreamURL,
		apiKey:    cfg.ApiKey,
		logger:    logger.Named("ws-feed"),
	}
}

// Open dials the streaming endpoint for a single symbol and starts
// pumping ticks until the connection ends or the feed is closed.
func (o *WSFeedOpener) Open(ctx context.Context, symbol string) (stream.Feed, error) {
	u, err := url.Parse(o.streamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid stream url: %w", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	if o.apiKey != "" {
		q.Set("apikey", o.apiKey)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial quote stream for %s: %w", symbol, err)
	}

	o.logger.Debug("Opened quote stream", zap.String("symbol", symbol))

	f := &wsFeed{
		conn:   conn,
		ticks:  make(chan stream.Tick),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	go f.readPump(symbol)
	return f, nil
}

// wsFeed is a single-symbol websocket quote stream.
type wsFeed struct {
	conn  *websocket.Conn
	ticks chan stream.Tick
	errs  chan error

	closeOnce sync.Once
	closed    chan struct{}
}

func (f *wsFeed) Ticks() <-chan stream.Tick { return f.ticks }
func (f *wsFeed) Errs() <-chan error        { return f.errs }

// Close tears the connection down. Safe to call more than once.
func (f *wsFeed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.closed)
		err = f.conn.Close()
	})
	return err
}

// readPump decodes ticks off the wire until the connection ends. A read
// error ends the pump; the subscription manager keeps the last known
// price and reports the error upward.
func (f *wsFeed) readPump(symbol string) {
	defer close(f.ticks)
	for {
		var tick stream.Tick
		if err := f.conn.ReadJSON(&tick); err != nil {
			select {
			case <-f.closed:
				// Normal teardown, not a feed failure.
			default:
				select {
				case f.errs <- fmt.Errorf("quote stream read for %s: %w", symbol, err):
				default:
				}
			}
			return
		}
		if tick.Symbol == "" {
			tick.Symbol = symbol
		}
		select {
		case f.ticks <- tick:
		case <-f.closed:
			return
		}
	}
}
