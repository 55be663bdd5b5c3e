package dataset

import (
	"github.com/smallbiznis/equiplytics/internal/dataset/repository"
	"github.com/smallbiznis/equiplytics/internal/dataset/retention"
	"github.com/smallbiznis/equiplytics/internal/dataset/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dataset.service",
	fx.Provide(repository.Provide),
	fx.Provide(retention.New),
	fx.Provide(service.New),
)
