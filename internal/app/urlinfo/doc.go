// Package urlinfo turns URLs seen in chat messages into descriptive replies.
//
// A message is split into candidate URLs by an Extractor, optionally
// filtered, and each URL is dispatched by Plugin.HandleURL:
//
//   - listeners on "url.host.<host>" take full ownership of the URL;
//   - otherwise the generic pipeline fetches the URL, races the registered
//     shortener against a deadline and sends one message built by a Handler;
//   - "url.host.all" is broadcast once per valid URL after that decision.
//
// Listener registries are populated at wiring time and sealed before the
// first message is handled; request handling only reads them.
package urlinfo
