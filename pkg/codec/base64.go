// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package codec provides the small encoders/decoders used on the wire and
// on disk: standard and URL-safe base64, both padded with '='. Every
// function here is pure and allocation-only; none retain state between
// calls.
package codec

import (
	"encoding/base64"
	"errors"
)

// ErrInvalidInput is returned when decode input is malformed: wrong length,
// or bytes outside the target alphabet.
var ErrInvalidInput = errors.New("codec: invalid input")

// EncodeStd encodes data with the standard (+/) alphabet, '=' padded.
func EncodeStd(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeStd decodes a standard-alphabet, '='-padded string.
func DecodeStd(s string) ([]byte, error) {
	return decode(base64.StdEncoding, s)
}

// EncodeURL encodes data with the URL- and filename-safe (-_) alphabet,
// '=' padded.
func EncodeURL(data []byte) string {
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeURL decodes a URL-safe, '='-padded string.
func DecodeURL(s string) ([]byte, error) {
	return decode(base64.URLEncoding, s)
}

func decode(enc *base64.Encoding, s string) ([]byte, error) {
	if len(s)%4 != 0 {
		return nil, ErrInvalidInput
	}
	out, err := enc.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidInput
	}
	return out, nil
}
