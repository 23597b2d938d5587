package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alfredjeanlab/marketplace/internal/codec"
	"github.com/alfredjeanlab/marketplace/internal/events"
	"github.com/alfredjeanlab/marketplace/internal/logging"
	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/store"
	"github.com/alfredjeanlab/marketplace/internal/typemap"
)

// MaxTitleLength is the longest accepted ad title, in characters.
const MaxTitleLength = 100

var (
	ErrTitleTooLong    = errors.New("title too long")
	ErrPriceNotAllowed = errors.New("price not allowed")
	ErrIDRequired      = errors.New("ad id is required")
	ErrOwnerRequired   = errors.New("owner id is required")
	ErrAdNotFound      = errors.New("classified ad not found")
)

// Service appends classified-ad events to the log and announces every
// append on the event bus.
type Service struct {
	log       store.EventLog
	publisher events.Publisher
	types     *typemap.Mapper
	codec     codec.Codec
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a service. A nil publisher disables notifications.
func NewService(log store.EventLog, publisher events.Publisher, types *typemap.Mapper, c codec.Codec, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		log:       log,
		publisher: publisher,
		types:     types,
		codec:     c,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register starts a new ad stream. It fails with
// store.ErrWrongExpectedVersion when the ad already exists.
func (s *Service) Register(ctx context.Context, adID, ownerID string) (model.Position, error) {
	if strings.TrimSpace(ownerID) == "" {
		return 0, ErrOwnerRequired
	}
	return s.append(ctx, adID, store.ExpectedNoStream, ClassifiedAdRegistered{ID: adID, OwnerID: ownerID})
}

// ChangeTitle, UpdateText, ChangePrice, Publish and MarkAsSold operate on a
// registered ad. They fail with ErrAdNotFound when the ad's stream is empty
// and with store.ErrWrongExpectedVersion when another command appended to
// the stream after it was read.

func (s *Service) ChangeTitle(ctx context.Context, adID, title string) (model.Position, error) {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return 0, fmt.Errorf("%w: %d characters, at most %d", ErrTitleTooLong, utf8.RuneCountInString(title), MaxTitleLength)
	}
	ad, err := s.load(ctx, adID)
	if err != nil {
		return 0, err
	}
	return s.append(ctx, adID, ad.version, ClassifiedAdTitleChanged{ID: adID, Title: title})
}

func (s *Service) UpdateText(ctx context.Context, adID, text string) (model.Position, error) {
	ad, err := s.load(ctx, adID)
	if err != nil {
		return 0, err
	}
	return s.append(ctx, adID, ad.version, ClassifiedAdTextUpdated{ID: adID, Text: text})
}

func (s *Service) ChangePrice(ctx context.Context, adID string, price float64, currency string) (model.Position, error) {
	if price < 0 {
		return 0, fmt.Errorf("%w: %v", ErrPriceNotAllowed, price)
	}
	ad, err := s.load(ctx, adID)
	if err != nil {
		return 0, err
	}
	return s.append(ctx, adID, ad.version, ClassifiedAdPriceChanged{
		ID:           adID,
		Price:        price,
		CurrencyCode: strings.ToUpper(currency),
	})
}

// Publish makes an ad available. The owner recorded at registration is
// carried on the event.
func (s *Service) Publish(ctx context.Context, adID, approvedBy string) (model.Position, error) {
	ad, err := s.load(ctx, adID)
	if err != nil {
		return 0, err
	}
	return s.append(ctx, adID, ad.version, ClassifiedAdPublished{
		ID:          adID,
		OwnerID:     ad.ownerID,
		ApprovedBy:  approvedBy,
		PublishedAt: s.now(),
	})
}

func (s *Service) MarkAsSold(ctx context.Context, adID string) (model.Position, error) {
	ad, err := s.load(ctx, adID)
	if err != nil {
		return 0, err
	}
	return s.append(ctx, adID, ad.version, ClassifiedAdMarkedAsSold{ID: adID, SoldAt: s.now()})
}

// adState is what commands need to know about a registered ad.
type adState struct {
	version int64
	ownerID string
}

// load reads the ad's stream.
func (s *Service) load(ctx context.Context, adID string) (adState, error) {
	if strings.TrimSpace(adID) == "" {
		return adState{}, ErrIDRequired
	}
	stream := StreamName(adID)
	evs, err := s.log.ReadStream(ctx, stream)
	if err != nil {
		return adState{}, fmt.Errorf("read %s: %w", stream, err)
	}
	if len(evs) == 0 {
		return adState{}, fmt.Errorf("%w: %s", ErrAdNotFound, adID)
	}

	ad := adState{version: evs[len(evs)-1].StreamVersion}
	registered, _ := s.types.WireName(ClassifiedAdRegistered{})
	for _, e := range evs {
		if e.Type != registered {
			continue
		}
		v, err := s.codec.Deserialize(e.Data, reflect.TypeFor[ClassifiedAdRegistered]())
		if err != nil {
			return adState{}, fmt.Errorf("decode registration of %s: %w", adID, err)
		}
		ad.ownerID = v.(ClassifiedAdRegistered).OwnerID
		break
	}
	return ad, nil
}

func (s *Service) append(ctx context.Context, adID string, expectedVersion int64, event any) (model.Position, error) {
	if strings.TrimSpace(adID) == "" {
		return 0, ErrIDRequired
	}
	wire, ok := s.types.WireName(event)
	if !ok {
		return 0, fmt.Errorf("no wire name registered for %T", event)
	}
	data, err := s.codec.Serialize(event)
	if err != nil {
		return 0, fmt.Errorf("serialize %s: %w", wire, err)
	}

	stream := StreamName(adID)
	pos, err := s.log.AppendToStream(ctx, stream, expectedVersion, []model.NewEvent{{Type: wire, Data: data}})
	if err != nil {
		return 0, fmt.Errorf("append %s to %s: %w", wire, stream, err)
	}

	if err := s.publisher.Publish(ctx, events.TopicLogAppended, events.Appended{StreamID: stream, Position: pos}); err != nil {
		s.logger.Warn("failed to publish append notification", "stream", stream, "position", pos, "err", err)
	}
	return pos, nil
}
