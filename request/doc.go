// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains the core types Config (describes a logical HTTP
request) and Execution (describes one attempt to run a Config), together
with the parameter encoders and response decoders they rely on.

A Config describes what to send and how to treat the answer: the path
and method, the parameters and their encoding, the response type, and
the response cache policy. Create a config with the default cache policy
(two minute max age, asynchronous cache writes):

	c := request.NewConfig("GET", "users/42")
	c.ResponseType = request.JSON
	c.CacheVersion = 3
	...

Parameters are encoded according to the config's ParamEncoding. URL
encodings place the parameters in the query string or in a form body
depending on the method, JSON encodings produce a JSON body, and
property list encodings produce an XML or binary plist body.

An Execution is the per-attempt state the dispatcher hands to accessory
handlers and to the request's completion hooks. You will typically not
allocate Execution instances yourself.
*/
package request
