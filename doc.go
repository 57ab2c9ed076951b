// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package reqcache runs declaratively configured HTTP requests, caches
their responses on disk, and composes them into chains and batches.

Create a Dispatcher, then create and start requests from it. Outcomes
are delivered asynchronously on the dispatcher's main executor.

	d := &reqcache.Dispatcher{
		BaseURL: "https://api.example.com/v1",
		Cache:   &cache.Dir{Root: os.TempDir()},
	}
	defer d.Close()

	r := d.NewRequest(request.NewConfig("GET", "users"))
	r.Config.ResponseType = request.JSON
	r.StartWith(func(r *reqcache.Request) {
		fmt.Println(r.JSON(), r.FromCache())
	}, func(r *reqcache.Request) {
		fmt.Println("failed:", r.Err())
	})

A successful response is saved to the cache when the request's
CacheMaxAge is positive. Starting an identical request again within
CacheMaxAge succeeds from the cache without any network activity, unless
the cache version, sensitive-data fingerprint or application version
changed in the meantime.

To run requests one after another, stopping at the first failure, use a
Chain:

	c := d.NewChain()
	c.Add(login, func(c *reqcache.Chain, r *reqcache.Request) {
		profile.Config.Header.Set("Authorization", token(r))
	})
	c.Add(profile, nil)
	c.Start()

To run requests concurrently, failing as soon as one fails, use a
Batch:

	b := d.NewBatch(avatar, settings, feed)
	b.StartWith(onAllLoaded, onFailed)

Accessory handlers observe the lifecycle of requests, chains and
batches independently of their outcome:

	r.AddAccessory(reqcache.WillStart, reqcache.HandlerFunc(
		func(_ reqcache.Event, e *request.Execution) {
			spinner.Start()
		}))

To build a dispatcher from a configuration file and the environment, use
package config and NewDispatcher.
*/
package reqcache
