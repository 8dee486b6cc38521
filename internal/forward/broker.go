package forward

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/retry"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

const (
	qosAtLeastOnce     = 1
	disconnectQuiesce  = 250 // milliseconds
	defaultWaitTimeout = 10 * time.Second
)

// Broker is a publish-only broker session. Only the Publisher's worker calls
// Connect, Publish and Disconnect. Lost delivers connection-loss
// notifications; it is the only thing the underlying client's callbacks do.
type Broker interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, payload []byte) error
	IsConnected() bool
	Lost() <-chan error
	Disconnect()
}

// MQTTConfig is fixed for the process lifetime.
type MQTTConfig struct {
	Host           string
	Port           int
	Topic          string
	Username       string
	Password       string
	ClientID       string
	TLS            *tls.Config
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	AckTimeout     time.Duration
}

// MQTTBroker publishes with QoS 1 over TLS. The client's own reconnect logic
// is disabled; reconnecting is the Publisher's job.
type MQTTBroker struct {
	client mqtt.Client
	cfg    MQTTConfig
	lost   chan error
	log    logger.Logger
}

func NewMQTTBroker(cfg MQTTConfig, log logger.Logger) *MQTTBroker {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultWaitTimeout
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultWaitTimeout
	}

	b := &MQTTBroker{
		cfg:  cfg,
		lost: make(chan error, 1),
		log:  log,
	}

	opts := mqtt.NewClientOptions().
		AddBroker("ssl://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))).
		SetClientID(cfg.ClientID).
		SetTLSConfig(cfg.TLS).
		SetProtocolVersion(4).
		SetCleanSession(true).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetWriteTimeout(cfg.AckTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case b.lost <- err:
			default:
			}
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	b.client = mqtt.NewClient(opts)

	return b
}

func (b *MQTTBroker) Connect(ctx context.Context) error {
	errFactory := errors.New()

	b.log.Debug().
		Str("host", b.cfg.Host).
		Int("port", b.cfg.Port).
		Str("client_id", b.cfg.ClientID).
		Msg("Connecting to MQTT broker")

	if err := wait(ctx, b.client.Connect(), b.cfg.ConnectTimeout); err != nil {
		wrapped := errFactory.Wrap(ErrNotConnected, err).WithData(b.cfg.Host)
		if refusedSession(err) {
			b.log.Warn().
				Err(err).
				Str("host", b.cfg.Host).
				Msg("Broker refused the session, check credentials and CA")
			return retry.Permanent(wrapped)
		}
		return wrapped
	}

	return nil
}

// refusedSession reports connect failures that repeating the attempt right
// away cannot fix: a CONNACK refusal or a server certificate that fails
// verification.
func refusedSession(err error) bool {
	for _, refused := range []error{
		packets.ErrorRefusedBadProtocolVersion,
		packets.ErrorRefusedIDRejected,
		packets.ErrorRefusedBadUsernameOrPassword,
		packets.ErrorRefusedNotAuthorised,
	} {
		if errors.Is(err, refused) {
			return true
		}
	}

	var verifyErr *tls.CertificateVerificationError
	var authorityErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError

	return errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

func (b *MQTTBroker) Publish(ctx context.Context, payload []byte) error {
	errFactory := errors.New()

	if !b.client.IsConnectionOpen() {
		return errFactory.New(ErrNotConnected)
	}

	token := b.client.Publish(b.cfg.Topic, qosAtLeastOnce, false, payload)
	if err := wait(ctx, token, b.cfg.AckTimeout); err != nil {
		return errFactory.Wrap(ErrPublishFailed, err).WithData(b.cfg.Topic)
	}

	return nil
}

func (b *MQTTBroker) IsConnected() bool {
	return b.client.IsConnectionOpen()
}

func (b *MQTTBroker) Lost() <-chan error {
	return b.lost
}

func (b *MQTTBroker) Disconnect() {
	if b.client.IsConnected() {
		b.client.Disconnect(disconnectQuiesce)
	}
}

// wait blocks until the token completes, the timeout passes or ctx is done.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New().WithData(ErrAckTimeout, timeout.String())
	case <-ctx.Done():
		return errors.New().Wrap(errors.ErrCancelled, ctx.Err())
	}
}
