// Copyright 2026 Zgrid, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package storage

import (
	"context"
	"encoding/base64"

	"golang.org/x/crypto/blake2b"
)

// ETag returns a content digest for the value stored under key,
// or ok=false if the key is absent. Two keys have equal ETags
// exactly when their stored bytes are identical.
func ETag(ctx context.Context, s Store, key string) (etag string, ok bool, err error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	sum := blake2b.Sum256(data)
	return base64.URLEncoding.EncodeToString(sum[:]), true, nil
}
