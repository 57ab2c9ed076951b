// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package cache persists HTTP response bodies together with a small
metadata record, and validates cached entries against the current
request before they are reused.

Each cached response is addressed by the Identity of the request that
produced it: the resolved host and path, the HTTP method, and the
(filtered) request parameters. The Key of an identity is a hex MD5
digest, so requests that agree on those fields share one entry.

Two backends are provided. Dir, the default, stores each entry as two
sibling files, <key> and <key>.metadata, inside a namespace directory
tagged with a CACHEDIR.TAG file so that backup tools skip it. LevelDB
stores the same records in a single goleveldb database.

Load runs the validation pipeline: a negative max age, missing or
corrupt metadata, an expired entry, and mismatched version, sensitive
data or application version all yield an Error, which callers treat as
a miss rather than a failure.
*/
package cache
