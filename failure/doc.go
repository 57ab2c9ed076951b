// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package failure categorizes the errors that end a request so that
// logs and metrics can group them without knowing every concrete error
// type a transport might produce.
package failure
