package domain

import "sort"

// CartSelection — отмеченные к оформлению позиции корзины покупателя.
type CartSelection struct {
	BuyerID int64
	// Counts содержит желаемое количество только для отмеченных вариантов.
	Counts map[int64]int32
	// Selected — все отмеченные идентификаторы, включая те, для которых в корзине
	// уже нет количества. Именно этот набор удаляется после коммита.
	Selected []int64
}

// Empty сообщает, нечего ли оформлять.
func (s CartSelection) Empty() bool {
	return len(s.Counts) == 0
}

// VariantIDs возвращает идентификаторы с количеством в порядке возрастания.
func (s CartSelection) VariantIDs() []int64 {
	ids := make([]int64, 0, len(s.Counts))
	for id := range s.Counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
