package main

import (
	"github.com/galdor/go-service/pkg/service"
)

func main() {
	service.Run("raftd", "a Raft-replicated key-value store", NewService())
}
