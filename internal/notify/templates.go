package notify

import (
	"fmt"

	"capslock/backend/internal/currency"
	"capslock/backend/internal/domain"
)

const messageDateLayout = "02/01/2006"

// IntakeReceiptMessage is the electronic receipt sent when a unit is taken in.
// The price is still unknown at intake, so it reads "(Cek Dulu)".
func IntakeReceiptMessage(profile domain.ShopProfile, t *domain.Ticket) string {
	return fmt.Sprintf(`*NOTA ELEKTRONIK*

*%s*
%s
HP : %s

=======================
*No Nota* : %s
*Pelanggan* : %s
*Tanggal Masuk* : %s
*Estimasi Selesai* : %s
=======================
Barang : %s
Kerusakan : %s
Kelengkapan : %s
=======================
*Harga* : (Cek Dulu)
*Status* : Antrian
=======================

Best Regard,
Admin %s
Terima Kasih 🙏
`,
		profile.Name, profile.Address, profile.Phone,
		t.ID, t.CustomerName,
		t.CreatedAt.Format(messageDateLayout), t.EstimatedAt.Format(messageDateLayout),
		t.ItemDescription, t.FaultDescription, t.Accessories,
		profile.Name)
}

// ReadyForPickupMessage tells the customer the unit is done and what to pay.
func ReadyForPickupMessage(profile domain.ShopProfile, t *domain.Ticket) string {
	total := "(Cek Dulu)"
	if t.ServiceFee > 0 {
		total = currency.FormatRupiah(t.ServiceFee)
	}
	return fmt.Sprintf(`Assalamualaikum %s,

Unit anda dengan nomor nota *%s* sudah *SIAP DIAMBIL*.

Total Biaya Servis: *%s*
Pembayaran: *%s*

Terima Kasih 🙏
%s`,
		t.CustomerName, t.ID, total, t.PaymentChannel, profile.Name)
}

// GoodsReceiptMessage is the sales receipt for an over-the-counter purchase.
func GoodsReceiptMessage(profile domain.ShopProfile, tx *domain.GoodsTransaction) string {
	return fmt.Sprintf(`NOTA PENJUALAN

*%s*
%s
HP : %s

No Nota : %s
Tanggal : %s
Barang  : %s
Qty     : %d
Harga   : %s
Total   : %s

Terima kasih sudah berbelanja!
`,
		profile.Name, profile.Address, profile.Phone,
		tx.ID, tx.Timestamp.Format(messageDateLayout),
		tx.ItemName, tx.Quantity,
		currency.FormatRupiah(tx.UnitPrice), currency.FormatRupiah(tx.Total))
}

// LowStockMessage is the Telegram alert body for a depleted inventory item.
// It returns empty when the quantity is above the alert threshold.
func LowStockMessage(itemName string, quantity int) string {
	switch {
	case quantity <= 0:
		return fmt.Sprintf("🚨 <b>Stok Habis!</b>\nBarang <b>%s</b> sudah <b>kosong</b>.\nSegera lakukan restock!", itemName)
	case quantity == 1:
		return fmt.Sprintf("⚠️ <b>Peringatan!</b>\nStok barang <b>%s</b> tinggal <b>1</b>.\nSegera siapkan restock.", itemName)
	default:
		return ""
	}
}
