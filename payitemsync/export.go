package payitemsync

import (
	"fmt"
	"io"

	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const exportSheet = "PayItems"

var exportHeadings = []string{"PayItemId", "EmployeeId", "EmployeeName", "PayDate", "Hours", "PayRate", "Amount"}

// ExportBusinessPayItems writes the business's current pay items as an xlsx workbook to w.
func ExportBusinessPayItems(db *gorm.DB, business *models.Business, w io.Writer) (int, error) {
	items, err := models.ListPayItemsForBusiness(db, business.ID)
	if err != nil {
		return 0, err
	}
	var users []models.User
	if err := db.Joins("JOIN user_businesses ON user_businesses.user_id = users.id").
		Where("user_businesses.business_id = ?", business.ID).
		Find(&users).Error; err != nil {
		return 0, err
	}
	byId := make(map[uint]models.User, len(users))
	for _, u := range users {
		byId[u.ID] = u
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return 0, err
	}
	for i, h := range exportHeadings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, h)
	}
	for i, item := range items {
		row := i + 2
		user := byId[item.UserId]
		f.SetCellValue(exportSheet, "A"+fmt.Sprint(row), item.ExternalId)
		f.SetCellValue(exportSheet, "B"+fmt.Sprint(row), user.ExternalId)
		f.SetCellValue(exportSheet, "C"+fmt.Sprint(row), user.Name)
		f.SetCellValue(exportSheet, "D"+fmt.Sprint(row), item.PayDate.Format(payDateLayout))
		f.SetCellValue(exportSheet, "E"+fmt.Sprint(row), item.Hours.InexactFloat64())
		f.SetCellValue(exportSheet, "F"+fmt.Sprint(row), item.PayRate.InexactFloat64())
		f.SetCellValue(exportSheet, "G"+fmt.Sprint(row), item.Amount.StringFixed(2))
	}
	if err := f.Write(w); err != nil {
		return 0, err
	}
	return len(items), nil
}
