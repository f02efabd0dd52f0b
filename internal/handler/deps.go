package handler

import (
	"github.com/ArchSirius/log3900-server/internal/app/collab"
	"github.com/ArchSirius/log3900-server/internal/app/storage"
	"github.com/ArchSirius/log3900-server/internal/app/store"
	"github.com/ArchSirius/log3900-server/internal/configs"
)

type AppDeps struct {
	Config         *configs.AppConfig
	Users          *store.UserStore
	Zones          *store.ZoneStore
	Controller     *collab.Controller
	StorageService storage.StorageService
}
