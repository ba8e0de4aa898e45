package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint возвращает детерминированный отпечаток входа.
// Вход сериализуется в JSON и приводится к канонической форме.
func Fingerprint(input any) (string, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("%w: marshal input: %v", ErrFingerprint, err)
	}
	return FingerprintJSON(raw)
}

// FingerprintJSON возвращает отпечаток уже сериализованного JSON.
func FingerprintJSON(raw []byte) (string, error) {
	canonical, err := Canonicalize(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize приводит JSON к канонической форме: ключи объектов
// отсортированы, незначащие пробелы удалены, числа сохранены как есть.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFingerprint, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrFingerprint)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json пишет ключи map в отсортированном порядке
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrFingerprint, err)
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
