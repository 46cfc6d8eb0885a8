package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/hairbuy/intake/internal/store"
)

const dateLayout = "02.01.2006 15:04"

var applicationHeader = []string{
	"ID", "Дата", "Имя", "Телефон", "Email", "Город",
	"Длина", "Цвет", "Структура", "Состояние", "Возраст",
	"Оценка", "Итоговая цена", "Статус", "Комментарий", "Заметки",
}

// WriteApplicationsCSV writes apps as a semicolon-separated file. It starts
// with a UTF-8 byte order mark so spreadsheets detect the encoding.
func WriteApplicationsCSV(w io.Writer, apps []store.Application) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return fmt.Errorf("write csv bom: %w", err)
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(applicationHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, a := range apps {
		if err := cw.Write(applicationRecord(a)); err != nil {
			return fmt.Errorf("write csv row %d: %w", a.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func applicationRecord(a store.Application) []string {
	final := ""
	if a.FinalPrice != nil {
		final = strconv.FormatInt(*a.FinalPrice, 10)
	}
	return []string{
		strconv.FormatInt(a.ID, 10),
		a.CreatedAt.Format(dateLayout),
		a.Name,
		a.Phone,
		a.Email,
		a.City,
		a.LengthLabel(),
		a.Color.Label(),
		a.Structure.Label(),
		a.Condition.Label(),
		a.Age.Label(),
		strconv.FormatInt(a.EstimatedPrice, 10),
		final,
		a.Status.Label(),
		a.Comment,
		a.AdminNotes,
	}
}
