// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package util

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// IsNotFoundError checks if an error has code NOT_FOUND
func IsNotFoundError(err error) bool {
	s, ok := status.FromError(err)
	if ok && s.Code() == codes.NotFound {
		return true
	}
	return false
}

// IsAlreadyExistsError checks if an error has code ALREADY_EXISTS
func IsAlreadyExistsError(err error) bool {
	s, ok := status.FromError(err)
	if ok && s.Code() == codes.AlreadyExists {
		return true
	}
	return false
}

// IsGoogleAPINotFound checks if a REST API call failed with HTTP 404.
func IsGoogleAPINotFound(err error) bool {
	return googleAPICode(err) == http.StatusNotFound
}

// IsGoogleAPIConflict checks if a REST API call failed with HTTP 409.
func IsGoogleAPIConflict(err error) bool {
	return googleAPICode(err) == http.StatusConflict
}

func googleAPICode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
