package codec

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const (
	codecNameRequiredMessageConstant = "codec name must be provided"
	unknownCodecTemplateConstant     = "unknown codec %q"
	validationErrorTemplateConstant  = "codec %q cannot decode: %v"
	encodeErrorTemplateConstant      = "codec %q cannot encode: %w"
	decodeBufferSizeConstant         = 4096
)

// ErrCodecNameRequired indicates an empty codec name was supplied.
var ErrCodecNameRequired = errors.New(codecNameRequiredMessageConstant)

// UnknownCodecError reports a codec name that no encoding matches.
type UnknownCodecError struct {
	Name string
}

// Error describes the unknown codec.
func (unknownCodecError UnknownCodecError) Error() string {
	return fmt.Sprintf(unknownCodecTemplateConstant, unknownCodecError.Name)
}

// ValidationError reports a codec that failed to decode an empty input.
type ValidationError struct {
	Name  string
	Cause error
}

// Error describes the validation failure.
func (validationError ValidationError) Error() string {
	return fmt.Sprintf(validationErrorTemplateConstant, validationError.Name, validationError.Cause)
}

// Unwrap exposes the decoding failure.
func (validationError ValidationError) Unwrap() error {
	return validationError.Cause
}

// Codec is a validated text encoding.
type Codec struct {
	name     string
	encoding encoding.Encoding
}

// Lookup resolves a codec by its WHATWG label (for example "utf-8",
// "latin1" or "utf-16le") and verifies that it can decode an empty input.
func Lookup(name string) (*Codec, error) {
	trimmedName := strings.TrimSpace(name)
	if len(trimmedName) == 0 {
		return nil, ErrCodecNameRequired
	}

	resolvedEncoding, lookupError := htmlindex.Get(trimmedName)
	if lookupError != nil || resolvedEncoding == nil {
		return nil, UnknownCodecError{Name: trimmedName}
	}

	if _, decodeError := resolvedEncoding.NewDecoder().Bytes(nil); decodeError != nil {
		return nil, ValidationError{Name: trimmedName, Cause: decodeError}
	}

	return &Codec{name: trimmedName, encoding: resolvedEncoding}, nil
}

// Name returns the label the codec was resolved from.
func (codec *Codec) Name() string {
	return codec.name
}

// Encode converts UTF-8 text back into the codec's byte representation.
func (codec *Codec) Encode(text []byte) ([]byte, error) {
	encoded, encodeError := codec.encoding.NewEncoder().Bytes(text)
	if encodeError != nil {
		return nil, fmt.Errorf(encodeErrorTemplateConstant, codec.name, encodeError)
	}
	return encoded, nil
}

// NewStreamDecoder returns a decoder for one output stream.
func (codec *Codec) NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{transformer: codec.encoding.NewDecoder()}
}

// StreamDecoder decodes consecutive chunks of one stream into UTF-8. It is
// not safe for concurrent use.
type StreamDecoder struct {
	transformer transform.Transformer
	pending     []byte
}

// Decode converts a chunk into UTF-8. Trailing bytes of an incomplete
// character are held back until the next chunk.
func (decoder *StreamDecoder) Decode(chunk []byte) ([]byte, error) {
	return decoder.transform(chunk, false)
}

// Flush decodes any held back bytes as final input.
func (decoder *StreamDecoder) Flush() ([]byte, error) {
	if len(decoder.pending) == 0 {
		return nil, nil
	}
	return decoder.transform(nil, true)
}

func (decoder *StreamDecoder) transform(chunk []byte, atEOF bool) ([]byte, error) {
	source := append(decoder.pending, chunk...)
	decoder.pending = nil

	decoded := make([]byte, 0, len(source))
	destination := make([]byte, decodeBufferSizeConstant)
	for {
		written, consumed, transformError := decoder.transformer.Transform(destination, source, atEOF)
		decoded = append(decoded, destination[:written]...)
		source = source[consumed:]

		switch {
		case transformError == nil:
			return decoded, nil
		case errors.Is(transformError, transform.ErrShortDst):
			if written == 0 && consumed == 0 {
				destination = make([]byte, 2*len(destination))
			}
		case errors.Is(transformError, transform.ErrShortSrc) && !atEOF:
			decoder.pending = append([]byte(nil), source...)
			return decoded, nil
		default:
			return decoded, transformError
		}
	}
}
