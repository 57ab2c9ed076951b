// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package timeout defines policies for setting the HTTP timeout of a
// request dispatched by reqcache. A generic interface for timeout
// policies is provided, Policy, along with policy generating functions
// and built-in policies.
package timeout
