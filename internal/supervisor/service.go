package supervisor

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/procwatch/internal/codec"
	"github.com/temirov/procwatch/internal/handle"
	"github.com/temirov/procwatch/internal/lifecycle"
	"github.com/temirov/procwatch/internal/observer"
	"github.com/temirov/procwatch/internal/taskrecord"
)

const (
	// DefaultPollInterval is the observer poll interval used when none is supplied.
	DefaultPollInterval = observer.DefaultPollInterval

	loggerNotConfiguredMessageConstant = "supervisor logger not configured"
	supervisionStartingMessageConstant = "starting background supervision"
	logFieldLabelConstant              = "label"
	logFieldCodecConstant              = "codec"
	logFieldPollIntervalConstant       = "poll_interval"
)

// ErrLoggerNotConfigured indicates NewService was called without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ServiceConfiguration customises a Service. A nil Listener logs lifecycle
// events through the service logger.
type ServiceConfiguration struct {
	Listener       lifecycle.Listener
	FailureHandler observer.FailureHandler
}

// Options describe one supervision request.
type Options struct {
	PollInterval time.Duration
	// Codec names the text encoding of the child's output; empty keeps raw bytes.
	Codec string
	Label string
	// DrainOnExit makes the record finish only after every stream reached
	// end of file, so it holds the complete output.
	DrainOnExit bool
}

// Service starts observers that share a logger, listener and failure handler.
type Service struct {
	logger         *zap.Logger
	listener       lifecycle.Listener
	failureHandler observer.FailureHandler
}

// NewService constructs a Service.
func NewService(logger *zap.Logger, configuration ServiceConfiguration) (*Service, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	listener := configuration.Listener
	if listener == nil {
		listener = lifecycle.NewLoggingListener(logger)
	}
	return &Service{
		logger:         logger,
		listener:       listener,
		failureHandler: configuration.FailureHandler,
	}, nil
}

var defaultService = &Service{logger: zap.NewNop(), listener: lifecycle.NoopListener{}}

// SuperviseInBackground starts a background observer for processHandle and
// returns its record immediately. An empty codecName captures raw bytes. An
// unusable codec is reported here and nothing is started.
func SuperviseInBackground(processHandle handle.Handle, pollInterval time.Duration, codecName string) (*taskrecord.Record, error) {
	return defaultService.SuperviseInBackground(processHandle, pollInterval, codecName)
}

// SuperviseInBackground starts a background observer with the service's
// logger, listener and failure handler.
func (service *Service) SuperviseInBackground(processHandle handle.Handle, pollInterval time.Duration, codecName string) (*taskrecord.Record, error) {
	return service.Supervise(processHandle, Options{PollInterval: pollInterval, Codec: codecName})
}

// Supervise starts a background observer described by options.
func (service *Service) Supervise(processHandle handle.Handle, options Options) (*taskrecord.Record, error) {
	codecName := options.Codec
	if len(codecName) > 0 {
		resolvedCodec, lookupError := codec.Lookup(codecName)
		if lookupError != nil {
			return nil, lookupError
		}
		codecName = resolvedCodec.Name()
	}

	pollInterval := options.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	record := taskrecord.New(codecName)
	processObserver, observerError := observer.New(processHandle, record, observer.Configuration{
		PollInterval:   pollInterval,
		Label:          options.Label,
		Logger:         service.logger,
		Listener:       service.listener,
		FailureHandler: service.failureHandler,
		DrainOnExit:    options.DrainOnExit,
	})
	if observerError != nil {
		return nil, observerError
	}

	service.logger.Debug(
		supervisionStartingMessageConstant,
		zap.String(logFieldLabelConstant, options.Label),
		zap.String(logFieldCodecConstant, codecName),
		zap.Duration(logFieldPollIntervalConstant, pollInterval),
	)
	processObserver.Start()

	return record, nil
}
