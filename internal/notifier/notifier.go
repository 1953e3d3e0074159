package notifier

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
)

var validate = validator.New()

// Keys are the browser-generated push encryption keys
type Keys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// Subscription is a web push subscription as sent by the browser
type Subscription struct {
	Endpoint       string `json:"endpoint" validate:"required,url"`
	ExpirationTime *int64 `json:"expirationTime,omitempty"`
	Keys           Keys   `json:"keys"`
}

// Payload is the notification shown to the user
type Payload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Time  string `json:"time"`
}

// SubscriptionStore keeps push subscriptions
type SubscriptionStore interface {
	Save(ctx context.Context, sub Subscription) error
	List(ctx context.Context) ([]Subscription, error)
}

// DeliveryQueue hands a payload to the push workers for one subscription
type DeliveryQueue interface {
	Enqueue(ctx context.Context, sub Subscription, payload Payload) error
}

// Options holds the notification text and the advertised VAPID key
type Options struct {
	Title          string
	Body           string
	VAPIDPublicKey string
	Now            func() time.Time
}

// Service stores subscriptions and fans alerts out to them
type Service struct {
	store SubscriptionStore
	queue DeliveryQueue
	opts  Options
}

// NewService creates a Service
func NewService(store SubscriptionStore, queue DeliveryQueue, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, queue: queue, opts: opts}
}

// Subscribe validates and stores one subscription
func (s *Service) Subscribe(ctx context.Context, sub Subscription) error {
	if err := validate.Struct(sub); err != nil {
		return err
	}
	return s.store.Save(ctx, sub)
}

// Dispatch enqueues one delivery per stored subscription and returns how many were queued.
// A failed enqueue is logged and does not stop the others.
func (s *Service) Dispatch(ctx context.Context) (int, error) {
	subs, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}

	payload := Payload{
		ID:    uuid.NewString(),
		Title: s.opts.Title,
		Body:  s.opts.Body,
		Time:  s.opts.Now().Format("15:04:05"),
	}

	queued := 0
	for _, sub := range subs {
		if err := s.queue.Enqueue(ctx, sub, payload); err != nil {
			log.Printf("notifier: failed to enqueue delivery to %s: %v", sub.Endpoint, err)
			continue
		}
		queued++
	}

	log.Printf("notifier: notification %s queued for %d of %d subscriptions", payload.ID, queued, len(subs))
	return queued, nil
}

// NewApp builds the fiber app with JSON errors and all routes registered.
// middleware runs before every route.
func NewApp(svc *Service, middleware ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "cabinair-notifier",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	for _, m := range middleware {
		app.Use(m)
	}
	RegisterRoutes(app, svc)
	return app
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, svc *Service) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "cabinair-notifier",
		})
	})

	app.Get("/vapidPublicKey", func(c *fiber.Ctx) error {
		if svc.opts.VAPIDPublicKey == "" {
			return fiber.NewError(fiber.StatusNotFound, "no VAPID public key configured")
		}
		return c.SendString(svc.opts.VAPIDPublicKey)
	})

	app.Post("/subscribe", func(c *fiber.Ctx) error {
		var sub Subscription
		if err := c.BodyParser(&sub); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid subscription body")
		}

		if err := svc.Subscribe(c.UserContext(), sub); err != nil {
			if _, ok := err.(validator.ValidationErrors); ok {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			log.Printf("notifier: failed to save subscription: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to save subscription")
		}

		log.Printf("notifier: saved subscription for %s", sub.Endpoint)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Subscription saved"})
	})

	app.Post("/sendNotification", func(c *fiber.Ctx) error {
		queued, err := svc.Dispatch(c.UserContext())
		if err != nil {
			log.Printf("notifier: failed to list subscriptions: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load subscriptions")
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message":    "Notifications sent",
			"deliveries": queued,
		})
	})
}
