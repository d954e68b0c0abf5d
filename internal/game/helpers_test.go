package game

import (
	"blockguess/internal/models"
	"blockguess/internal/table"
)

func updateRanks(ranks *[]int) table.UpdateFunc[models.Round] {
	return func(old, rec models.Round) {
		*ranks = append(*ranks, rec.Status.Rank())
	}
}

func prizeCounter(n *int) table.InsertFunc[models.PrizeConfig] {
	return func(models.PrizeConfig) { *n++ }
}

func prizeUpdateCounter(n *int) table.UpdateFunc[models.PrizeConfig] {
	return func(models.PrizeConfig, models.PrizeConfig) { *n++ }
}
