// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package external

//go:generate mockgen -source bucketadmin.go -destination bucketadmin.mock.go -package external -write_package_comment=false
