package engine

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ValueSigner signs short-lived values with an in-memory HMAC key.
// Signed values don't survive process restarts, which is fine for things
// like oauth state params that expire within minutes anyway.
type ValueSigner[T any] struct {
	key []byte
}

func NewValueSigner[T any]() *ValueSigner[T] {
	v := &ValueSigner[T]{key: make([]byte, 32)}
	if _, err := rand.Read(v.key); err != nil {
		panic(err)
	}
	return v
}

func (v *ValueSigner[T]) Sign(val T, ttl time.Duration) string {
	js, err := json.Marshal(&signedValue[T]{Value: val, Exp: time.Now().Add(ttl).Unix()})
	if err != nil {
		panic(err)
	}
	h := hmac.New(sha256.New, v.key)
	h.Write(js)
	return fmt.Sprintf("%s.%s", base64.URLEncoding.EncodeToString(js), base64.URLEncoding.EncodeToString(h.Sum(nil)))
}

func (v *ValueSigner[T]) Verify(str string) (val T, valid bool) {
	parts := strings.Split(str, ".")
	if len(parts) != 2 {
		return
	}
	js, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return
	}

	sig, _ := base64.URLEncoding.DecodeString(parts[1])
	h := hmac.New(sha256.New, v.key)
	io.WriteString(h, string(js))
	if !hmac.Equal(sig, h.Sum(nil)) {
		return
	}

	sv := &signedValue[T]{}
	if err := json.Unmarshal(js, sv); err != nil {
		return
	}
	if time.Now().Unix() > sv.Exp {
		return
	}
	return sv.Value, true
}

type signedValue[T any] struct {
	Value T     `json:"v"`
	Exp   int64 `json:"e"`
}
