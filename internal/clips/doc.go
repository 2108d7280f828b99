// Package clips holds the clip catalog and the stores that turn clip IDs into
// local files.
//
// The catalog is a YAML document with four sections:
//
//	clips:
//	  - id: wow
//	    file: wow.mp3
//	songs:
//	  mangione1: feels_so_good.mp3
//	triggers:
//	  - pattern: "(?i)\\bwow\\b"
//	    reply: wow
//	    clip: wow
//	schedules:
//	  - guild: "517907971481534467"
//	    clip: wow
//	    cron: "20 16 * * *"
//
// DirStore serves clips from the assets directory. MinioStore serves them from
// blob storage through a local cache.
package clips
