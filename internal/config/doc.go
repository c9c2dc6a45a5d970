// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation:
//
//	client:
//	  user_id: ${ROOMSYNC_USER}
//	  key_file: /etc/roomsync/key
//	  room: lobby
//	connection:
//	  url: wss://rooms.example.org/sock
//	  origin: https://rooms.example.org
//	media:
//	  media_id: intro
package config
