// Package codec resolves named text encodings and decodes output chunks
// incrementally, carrying incomplete multi-byte sequences between chunks.
package codec
