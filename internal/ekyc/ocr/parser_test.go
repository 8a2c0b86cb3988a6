package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestDenoise(t *testing.T) {
	assert.Equal(t, "NIK : 3201", Denoise("  nik\t:\n 3201 "))
	assert.Equal(t, "ISLAM", Denoise("|slam"))
	assert.Equal(t, "", Denoise("   "))
}

func TestParseNIKInline(t *testing.T) {
	r := ParseKtpFields([]string{"NIK: 3201234567890123"})
	require.NotNil(t, r.NIK)
	assert.Equal(t, "3201234567890123", *r.NIK)
	assert.Empty(t, r.ExtraFields)
}

func TestParseNameOnNextLine(t *testing.T) {
	r := ParseKtpFields([]string{"NAMA", "BUDI SANTOSO"})
	assert.Equal(t, str("BUDI SANTOSO"), r.Name)
	assert.Empty(t, r.ExtraFields)
}

func TestParseFullCard(t *testing.T) {
	lines := []string{
		"PROVINSI JAWA BARAT",
		"KABUPATEN BEKASI",
		"NIK : 3216061708900003",
		"Nama : Budi Santoso",
		"Tempat/Tgl Lahir : JAKARTA, 17-08-1990",
		"Jenis Kelamin : LAKI-LAKI Gol Darah : O",
		"Alamat : JL. KELAPA GADING NO. 12",
		"PERUMAHAN INDAH",
		"RT/RW : 001 / 002",
		"Kel/Desa : SUKAMAJU",
		"Kecamatan : CIKARANG",
		"Agama : |SLAM",
		"Status Perkawinan : BELUM KAWIN",
		"Pekerjaan : KARYAWAN SWASTA",
		"Kewarganegaraan : WNI",
		"Berlaku Hingga : SEUMUR HIDUP",
	}
	r := ParseKtpFields(lines)

	assert.Equal(t, str("3216061708900003"), r.NIK)
	assert.Equal(t, str("BUDI SANTOSO"), r.Name)
	assert.Equal(t, str("JAKARTA"), r.BirthPlace)
	assert.Equal(t, str("17-08-1990"), r.BirthDate)
	assert.Equal(t, str("LAKI-LAKI GOL DARAH : O"), r.Gender)
	assert.Equal(t, str("O"), r.BloodType)
	assert.Equal(t, str("JL. KELAPA GADING NO. 12 PERUMAHAN INDAH"), r.Address)
	assert.Equal(t, str("001/002"), r.RtRw)
	assert.Equal(t, str("SUKAMAJU"), r.Village)
	assert.Equal(t, str("CIKARANG"), r.SubDistrict)
	assert.Equal(t, str("ISLAM"), r.Religion)
	assert.Equal(t, str("BELUM KAWIN"), r.MaritalStatus)
	assert.Equal(t, str("KARYAWAN SWASTA"), r.Occupation)
	assert.Equal(t, str("WNI"), r.Citizenship)
	assert.Equal(t, str("SEUMUR HIDUP"), r.IssueDate)

	assert.Equal(t, map[string]string{
		"line_1": "PROVINSI JAWA BARAT",
		"line_2": "KABUPATEN BEKASI",
	}, r.ExtraFields)
	assert.Contains(t, r.RawText, "NAMA : BUDI SANTOSO\nTEMPAT/TGL LAHIR")
}

func TestParseBirthPlaceWithoutDate(t *testing.T) {
	r := ParseKtpFields([]string{"TEMPAT/TGL LAHIR", "BANDUNG"})
	assert.Equal(t, str("BANDUNG"), r.BirthPlace)
	assert.Nil(t, r.BirthDate)
}

func TestParseMissingFieldsAreNil(t *testing.T) {
	r := ParseKtpFields([]string{"REPUBLIK INDONESIA", "", "12345"})
	assert.Nil(t, r.NIK)
	assert.Nil(t, r.Name)
	assert.Nil(t, r.Address)
	assert.Nil(t, r.RtRw)
	assert.Nil(t, r.BirthPlace)
	assert.Equal(t, "REPUBLIK INDONESIA\n12345", r.RawText)
	assert.Equal(t, map[string]string{"line_1": "REPUBLIK INDONESIA", "line_3": "12345"}, r.ExtraFields)
}

func TestParseEmptyInput(t *testing.T) {
	r := ParseKtpFields(nil)
	assert.Nil(t, r.NIK)
	assert.Empty(t, r.RawText)
	assert.Empty(t, r.ExtraFields)
}

func TestLabelAtEndOfInputWithoutValue(t *testing.T) {
	r := ParseKtpFields([]string{"AGAMA"})
	assert.Nil(t, r.Religion)
}

func TestLabelIndexRespectsWordBoundaries(t *testing.T) {
	assert.Equal(t, -1, labelIndex("JENIS KELAMIN : PEREMPUAN", "KEL"))
	assert.Equal(t, 0, labelIndex("KEL/DESA : X", "KEL"))
	assert.Equal(t, -1, labelIndex("KECAMATAN : X", "KEC"))
	assert.Equal(t, 6, labelIndex("ALAMT KEC. X", "KEC"))
}
